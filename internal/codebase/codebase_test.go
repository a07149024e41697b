package codebase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMap = `
related_files:
  src/auth/login.go:
    - src/auth/session.go
    - src/auth/token.go
decisions:
  - title: "ADR-003: sessions are stateless JWTs"
    files:
      - src/auth/login.go
    domains:
      - auth
  - title: "ADR-009: single write connection"
    domains:
      - database
`

func loadTestMap(t *testing.T) *Map {
	t.Helper()
	path := filepath.Join(t.TempDir(), "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testMap), 0644))
	m, err := Load(path)
	require.NoError(t, err)
	return m
}

func TestRelatedFiles(t *testing.T) {
	m := loadTestMap(t)
	ctx := context.Background()

	files, err := m.RelatedFiles(ctx, "src/auth/login.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/auth/session.go", "src/auth/token.go"}, files)

	files, err = m.RelatedFiles(ctx, "src/unknown.go")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRelatedFilesNormalizesSeparators(t *testing.T) {
	m := loadTestMap(t)

	files, err := m.RelatedFiles(context.Background(), `src\auth\login.go`)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestRelatedDecisions(t *testing.T) {
	m := loadTestMap(t)
	ctx := context.Background()

	// Match by file.
	decisions, err := m.RelatedDecisions(ctx, "src/auth/login.go", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ADR-003: sessions are stateless JWTs"}, decisions)

	// Match by domain only.
	decisions, err = m.RelatedDecisions(ctx, "", "database")
	require.NoError(t, err)
	assert.Equal(t, []string{"ADR-009: single write connection"}, decisions)

	// No match.
	decisions, err = m.RelatedDecisions(ctx, "other.go", "ui")
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("related_files: ["), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}
