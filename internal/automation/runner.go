// Package automation drives the Messages and System Events applications
// through osascript. Every operation here is fire-and-forget from the
// database's point of view: osascript reports whether the script ran, not
// whether a message was durably sent, so callers correlate outcomes
// through the poller layer instead.
package automation

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Runner executes an AppleScript with positional arguments and returns
// its stdout.
type Runner interface {
	Run(ctx context.Context, script string, args ...string) (string, error)
}

// OsaRunner runs scripts through the osascript binary, feeding the script
// on stdin so its text never hits the argument list or a temp file.
type OsaRunner struct {
	logger *zap.Logger
}

// NewOsaRunner creates a Runner backed by osascript.
func NewOsaRunner(logger *zap.Logger) *OsaRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OsaRunner{logger: logger}
}

// Run executes the script. Script arguments arrive in the script's
// `on run argv` handler.
func (r *OsaRunner) Run(ctx context.Context, script string, args ...string) (string, error) {
	cmdArgs := append([]string{"-"}, args...)
	cmd := exec.CommandContext(ctx, "osascript", cmdArgs...)
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		msg := CleanError(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		r.logger.Debug("osascript failed", zap.String("error", msg))
		return "", &ScriptError{Message: msg}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ScriptError is a failure reported by the scripting subsystem, with the
// osascript noise stripped.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return e.Message }

var (
	execErrPrefix = regexp.MustCompile(`^\d*:\d*:\s*execution error:\s*`)
	osErrSuffix   = regexp.MustCompile(`\s*\(-?\d+\)\s*$`)
)

// CleanError strips osascript's framing from an error line: the
// "N:M: execution error:" prefix and the trailing OSStatus code, leaving
// the human-readable message.
func CleanError(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = execErrPrefix.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "execution error: ")
	s = osErrSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
