// Package verify runs generated converters through a compile-and-roundtrip
// check: the struct is duplicated, converted forward, converted back,
// converted forward again, and the two idiomatic values are compared on the
// spec's hinted fields. A pass is the only path into the converter registry.
package verify

import (
	"regexp"
	"strings"
	"time"

	"github.com/crossffi/bridgen/internal/sandbox"
)

// Verification outcomes.
const (
	StatusPass             = "pass"
	StatusMismatch         = "mismatch"
	StatusRoundtripFailure = "roundtrip_failure"
)

// Failure causes for StatusRoundtripFailure.
const (
	CauseBuildFailure = "build_failure"
	CauseNullResult   = "null_result"
	CausePanic        = "panic"
	CauseTimeout      = "timeout"
)

// maxOutputSnippet bounds how much cargo output a result carries. The tail
// holds the assertion message and test summary, which is what escalation
// payloads need.
const maxOutputSnippet = 4000

// Result is the outcome of one verification attempt.
type Result struct {
	Spec          string        `json:"spec"`
	Status        string        `json:"status"`
	Cause         string        `json:"cause,omitempty"`
	MismatchPaths []string      `json:"mismatch_paths,omitempty"`
	Output        string        `json:"output,omitempty"`
	Duration      time.Duration `json:"duration"`
	Attempt       int           `json:"attempt,omitempty"`
}

// Passed reports a clean roundtrip.
func (r *Result) Passed() bool {
	return r.Status == StatusPass
}

var (
	mismatchPattern = regexp.MustCompile(`failed: field (\S+) mismatch`)
	nullPattern     = regexp.MustCompile(`returned null`)
	buildPattern    = regexp.MustCompile(`(?m)^error(\[E\d+\])?:`)
)

// Classify turns a cargo run into a verification result. Precedence:
// timeout, build failure, field mismatch, null result, any other panic.
func Classify(specName string, run *sandbox.RunResult) *Result {
	res := &Result{
		Spec:     specName,
		Output:   Snippet(run.Output),
		Duration: run.Duration,
	}

	switch {
	case run.TimedOut:
		res.Status = StatusRoundtripFailure
		res.Cause = CauseTimeout
	case run.ExitCode == 0:
		res.Status = StatusPass
	case buildPattern.MatchString(run.Output):
		res.Status = StatusRoundtripFailure
		res.Cause = CauseBuildFailure
	case mismatchPattern.MatchString(run.Output):
		res.Status = StatusMismatch
		for _, m := range mismatchPattern.FindAllStringSubmatch(run.Output, -1) {
			res.MismatchPaths = append(res.MismatchPaths, m[1])
		}
		res.MismatchPaths = dedupe(res.MismatchPaths)
	case nullPattern.MatchString(run.Output):
		res.Status = StatusRoundtripFailure
		res.Cause = CauseNullResult
	default:
		res.Status = StatusRoundtripFailure
		res.Cause = CausePanic
	}
	return res
}

// Snippet returns the trailing portion of cargo output, bounded by
// maxOutputSnippet.
func Snippet(out string) string {
	out = strings.TrimSpace(out)
	if len(out) <= maxOutputSnippet {
		return out
	}
	return out[len(out)-maxOutputSnippet:]
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
