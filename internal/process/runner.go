// Package process runs the external mount utilities. Everything that shells
// out goes through Runner so callers can be tested with a scripted fake.
package process

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"
	"strings"
	"time"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/utils"
)

// Result is the outcome of a command that was started successfully.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Lines splits stdout into lines without trailing newlines.
func (r Result) Lines() []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(r.Stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

// Runner starts a command, waits for it and captures its output.
//
// A nonzero exit status is not an error: it is reported in Result.ExitCode so
// that callers can classify stderr. An error means the command could not be
// started or waited on at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct {
	logger *utils.StructuredLogger
}

// NewExecRunner creates a runner that logs every command at debug level.
func NewExecRunner(logger *utils.StructuredLogger) *ExecRunner {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &ExecRunner{logger: logger.WithComponent("process")}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case stderrors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		result.ExitCode = exitErr.ExitCode()
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, errors.Wrap(ctxErr, errors.ErrCodeOperationCanceled, "command canceled").
				WithComponent("process").
				WithContext("command", name)
		}
		return result, errors.Wrap(err, errors.ErrCodeCommandLaunch, "failed to run command").
			WithComponent("process").
			WithContext("command", name)
	}

	r.logger.Debug("Command finished", map[string]interface{}{
		"command":   name,
		"args":      args,
		"exit_code": result.ExitCode,
		"duration":  result.Duration.String(),
	})
	r.logger.Trace("Command output", map[string]interface{}{
		"command": name,
		"stdout":  result.Stdout,
		"stderr":  result.Stderr,
	})
	return result, nil
}

// CommandLine renders a command for logs and error messages.
func CommandLine(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
