package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single cargo test run when no explicit timeout is
// configured. Converter bugs show up as infinite loops often enough that an
// unbounded run is never acceptable.
const DefaultTimeout = 120 * time.Second

// Runner executes cargo inside a crate directory under a wall-clock
// deadline.
type Runner struct {
	CargoBin string // defaults to "cargo"
	Timeout  time.Duration
}

// RunResult captures one cargo invocation. TimedOut is set when the deadline
// killed the process; Output then holds whatever was produced before the
// kill.
type RunResult struct {
	Output   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Passed reports whether the run completed in time with a zero exit status.
func (r *RunResult) Passed() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// CargoTest runs "cargo test --quiet" in dir. A non-zero exit status is not
// an error: the caller classifies it from the captured output. An error is
// returned only when the process could not be run at all.
func (r *Runner) CargoTest(ctx context.Context, dir string) (*RunResult, error) {
	bin := r.CargoBin
	if bin == "" {
		bin = "cargo"
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, "test", "--quiet")
	cmd.Dir = dir

	start := time.Now()
	out, err := cmd.CombinedOutput()
	res := &RunResult{
		Output:   string(out),
		Duration: time.Since(start),
	}

	if ctx.Err() == context.Canceled {
		// The caller gave up, not the converter. Killed-process output
		// must not be classified as a roundtrip failure.
		return nil, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, err
	}
	return res, nil
}
