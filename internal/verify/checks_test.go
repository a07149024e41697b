package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wardenhq/warden/internal/types"
)

func TestExecRunnerPass(t *testing.T) {
	r := NewExecRunner(t.TempDir())
	passed, _ := r.Run(context.Background(), types.CheckBuild, CheckConfig{
		Enabled: true,
		Command: []string{"true"},
		Timeout: types.Duration(5 * time.Second),
	})
	assert.True(t, passed)
}

func TestExecRunnerFail(t *testing.T) {
	r := NewExecRunner(t.TempDir())
	passed, output := r.Run(context.Background(), types.CheckTests, CheckConfig{
		Enabled: true,
		Command: []string{"sh", "-c", "echo FAIL: TestLogin; exit 1"},
		Timeout: types.Duration(5 * time.Second),
	})
	assert.False(t, passed)
	assert.Contains(t, output, "FAIL: TestLogin")
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner(t.TempDir())
	passed, output := r.Run(context.Background(), types.CheckTests, CheckConfig{
		Enabled: true,
		Command: []string{"sleep", "5"},
		Timeout: types.Duration(50 * time.Millisecond),
	})
	assert.False(t, passed)
	assert.Contains(t, output, "timed out")
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner(t.TempDir())
	passed, _ := r.Run(context.Background(), types.CheckLint, CheckConfig{
		Enabled: true,
		Command: []string{"definitely-not-a-real-binary"},
		Timeout: types.Duration(5 * time.Second),
	})
	assert.False(t, passed)
}

func TestExecRunnerNoCommand(t *testing.T) {
	r := NewExecRunner("")
	passed, _ := r.Run(context.Background(), types.CheckBuild, CheckConfig{Enabled: true})
	assert.False(t, passed)
}
