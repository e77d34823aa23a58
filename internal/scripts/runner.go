// Package scripts executes a container's lifecycle scripts with per-attempt
// timeout, bounded retry and truncated output capture.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devcage/devcage/internal/models"
)

// Execer is the single runtime capability the runner needs.
type Execer interface {
	Exec(ctx context.Context, name string, cmd []string, stdout, stderr io.Writer) (int, error)
}

// Config controls retry, timeout and capture behaviour.
type Config struct {
	// InitTimeout bounds each post_start attempt
	InitTimeout time.Duration

	// HaltTimeout bounds each pre_stop attempt
	HaltTimeout time.Duration

	// MaxAttempts bounds retries per script (including the first attempt)
	MaxAttempts int

	// RetryDelay is the fixed backoff between attempts
	RetryDelay time.Duration

	// MaxOutputLines caps captured output per attempt
	MaxOutputLines int
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		InitTimeout:    300 * time.Second,
		HaltTimeout:    300 * time.Second,
		MaxAttempts:    3,
		RetryDelay:     2 * time.Second,
		MaxOutputLines: 100,
	}
}

// Runner executes resolved lifecycle scripts against a running container.
type Runner struct {
	execer Execer
	config Config
	logger *logrus.Logger
}

// RunnerOptions defines options for creating a Runner.
type RunnerOptions struct {
	Execer Execer
	Config Config
	Logger *logrus.Logger
}

// NewRunner creates a script runner.
func NewRunner(options RunnerOptions) *Runner {
	logger := options.Logger
	if logger == nil {
		logger = logrus.New()
	}
	cfg := options.Config
	defaults := DefaultConfig()
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = defaults.InitTimeout
	}
	if cfg.HaltTimeout <= 0 {
		cfg.HaltTimeout = defaults.HaltTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.MaxOutputLines <= 0 {
		cfg.MaxOutputLines = defaults.MaxOutputLines
	}
	return &Runner{execer: options.Execer, config: cfg, logger: logger}
}

// Run executes the ordered script list for one container and phase. Scripts
// run strictly in order: the default script, when present, settles (success
// or exhausted retries) before the custom one begins. An exhausted default
// does not abort the custom script; operators rely on its side effects
// independently. Every attempt is recorded as a separate ScriptResult.
//
// An empty script list is a no-op success (no results).
func (r *Runner) Run(ctx context.Context, container string, phase models.ScriptPhase, scripts []models.ScriptSpec) []models.ScriptResult {
	var results []models.ScriptResult
	for _, script := range scripts {
		if script.Phase != phase {
			continue
		}
		results = append(results, r.runScript(ctx, container, script)...)
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

// runScript executes one script with bounded retry and fixed backoff.
func (r *Runner) runScript(ctx context.Context, container string, script models.ScriptSpec) []models.ScriptResult {
	timeout := r.config.InitTimeout
	if script.Phase == models.PhasePreStop {
		timeout = r.config.HaltTimeout
	}

	log := r.logger.WithFields(logrus.Fields{
		"container": container,
		"phase":     script.Phase,
		"origin":    script.Origin,
	})

	results := make([]models.ScriptResult, 0, 1)
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		result := r.runAttempt(ctx, container, script, attempt, timeout)
		results = append(results, result)

		if result.Success() {
			log.WithField("attempt", attempt).Debug("Script succeeded")
			return results
		}

		log.WithFields(logrus.Fields{
			"attempt":   attempt,
			"exit_code": result.ExitCode,
			"timed_out": result.TimedOut,
		}).Warn("Script attempt failed")

		// The operation was cancelled; further retries would be pointless.
		if ctx.Err() != nil {
			return results
		}

		if attempt < r.config.MaxAttempts {
			select {
			case <-time.After(r.config.RetryDelay):
			case <-ctx.Done():
				return results
			}
		}
	}
	return results
}

// runAttempt executes a single attempt under its per-attempt timeout.
func (r *Runner) runAttempt(ctx context.Context, container string, script models.ScriptSpec, attempt int, timeout time.Duration) models.ScriptResult {
	result := models.ScriptResult{
		Phase:    script.Phase,
		Origin:   script.Origin,
		Attempt:  attempt,
		ExitCode: -1,
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	capture := newLineCapture(r.config.MaxOutputLines)
	start := time.Now()
	exitCode, err := r.execer.Exec(attemptCtx, container, script.ExecArgv(), capture.Stdout(), capture.Stderr())
	result.Duration = time.Since(start)
	result.Output, result.Truncated = capture.Lines()

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		result.TimedOut = true
		result.Error = fmt.Sprintf("%v after %s (attempt %d)", models.ErrScriptTimeout, timeout, attempt)
	case err != nil:
		result.Error = err.Error()
	default:
		result.ExitCode = exitCode
		if exitCode != 0 {
			result.Error = fmt.Sprintf("exited with code %d", exitCode)
		}
	}

	return result
}

// Failed reports whether the aggregate phase result is a failure: the final
// attempt of any script in the phase did not succeed.
func Failed(results []models.ScriptResult) bool {
	// The last attempt per origin decides; earlier failed attempts that were
	// eventually retried successfully do not fail the phase.
	last := make(map[models.ScriptOrigin]models.ScriptResult)
	for _, r := range results {
		last[r.Origin] = r
	}
	for _, r := range last {
		if !r.Success() {
			return true
		}
	}
	return false
}
