package classifier

import (
	"regexp"

	"github.com/wardenhq/warden/internal/types"
)

// rule is one entry of the ordered classification table.
// The first rule whose pattern matches the signal text wins.
type rule struct {
	pattern  *regexp.Regexp
	severity types.Severity
	category string
	labels   []string
}

// CategoryArchitectureViolation is the category forced by the
// protected-boundary override, independent of the first-match result.
const CategoryArchitectureViolation = "architecture-violation"

// CategoryUnknown is assigned when no rule matches.
const CategoryUnknown = "unknown"

// boundaryMarker detects protected-boundary violations anywhere in the raw
// text. It overrides the table result: severity is forced to critical and
// the category to architecture-violation.
var boundaryMarker = regexp.MustCompile(`(?i)protected[-_ ]boundary`)

// rules is evaluated in order; order is load-bearing. Compiler and type
// errors outrank the generic runtime-exception markers so that a TypeScript
// diagnostic inside a stack trace still classifies as a type error.
var rules = []rule{
	{
		pattern:  regexp.MustCompile(`\bTS\d{3,5}\b|\bTypeError\b|\bReferenceError\b|(?i)type error|(?i)type mismatch|cannot use .+ as .+ value`),
		severity: types.SeverityHigh,
		category: "type-error",
		labels:   []string{"bug", "type-check"},
	},
	{
		pattern:  regexp.MustCompile(`(?i)syntax ?error|unexpected token|(?i)parse error`),
		severity: types.SeverityHigh,
		category: "syntax-error",
		labels:   []string{"bug", "syntax"},
	},
	{
		pattern:  regexp.MustCompile(`(?m)^--- FAIL|(?i)\btests? failed\b|(?i)assertion failed|(?m)^FAIL\b`),
		severity: types.SeverityHigh,
		category: "test-failure",
		labels:   []string{"bug", "tests"},
	},
	{
		pattern:  boundaryMarker,
		severity: types.SeverityCritical,
		category: CategoryArchitectureViolation,
		labels:   []string{"architecture", "needs-review"},
	},
	{
		pattern:  regexp.MustCompile(`(?i)\bpanic\b|(?i)unhandled exception|(?i)\bfatal\b|(?i)segmentation fault|Traceback \(most recent call last\)`),
		severity: types.SeverityCritical,
		category: "runtime-error",
		labels:   []string{"bug", "runtime"},
	},
	{
		pattern:  regexp.MustCompile(`(?i)eslint|golangci-lint|(?m)^.+:\d+:\d+: warning:|(?i)\blint(er)? (error|warning)`),
		severity: types.SeverityLow,
		category: "lint",
		labels:   []string{"lint"},
	},
}

// problemVocabulary gates free-text reports from the manual source. A manual
// signal that matches none of these words is not a problem report and
// classification returns nil.
var problemVocabulary = regexp.MustCompile(`(?i)\b(broken|breaks?|error|fail(s|ed|ing|ure)?|not working|doesn'?t work|crash(es|ed)?|bug|wrong|exception)\b`)

// domainPatterns maps a domain keyword to the regex that detects it in the
// signal text. The keyword is used for related-decision lookups.
var domainPatterns = map[string]*regexp.Regexp{
	"auth":     regexp.MustCompile(`(?i)\b(auth|login|logout|token|session|credential|oauth)\b`),
	"database": regexp.MustCompile(`(?i)\b(database|db|sql|query|migration|transaction)\b`),
	"api":      regexp.MustCompile(`(?i)\b(api|endpoint|http|request|response|handler)\b`),
	"ui":       regexp.MustCompile(`(?i)\b(render|component|view|layout|widget)\b`),
	"build":    regexp.MustCompile(`(?i)\b(build|compile|compiler|bundler|link(er)?)\b`),
}
