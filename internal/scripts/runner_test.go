package scripts

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devcage/devcage/internal/models"
)

// fakeExecer scripts the behaviour of consecutive Exec calls.
type fakeExecer struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, cmd []string, stdout, stderr io.Writer) (int, error)
}

func (f *fakeExecer) Exec(ctx context.Context, name string, cmd []string, stdout, stderr io.Writer) (int, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, cmd, stdout, stderr)
}

func (f *fakeExecer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastConfig() Config {
	return Config{
		InitTimeout:    time.Second,
		HaltTimeout:    time.Second,
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
		MaxOutputLines: 100,
	}
}

func customScript(phase models.ScriptPhase) models.ScriptSpec {
	return models.ScriptSpec{Phase: phase, Origin: models.OriginCustom, Command: "echo custom", Shell: "/bin/sh"}
}

func defaultScript(phase models.ScriptPhase) models.ScriptSpec {
	return models.ScriptSpec{Phase: phase, Origin: models.OriginDefault, Command: "echo default", Shell: "/bin/sh"}
}

func TestRunnerSuccess(t *testing.T) {
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		fmt.Fprintln(stdout, "hello")
		return 0, nil
	}}
	runner := NewRunner(RunnerOptions{Execer: execer, Config: fastConfig()})

	results := runner.Run(context.Background(), "dev-env", models.PhasePostStart,
		[]models.ScriptSpec{customScript(models.PhasePostStart)})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success())
	assert.Equal(t, 0, results[0].ExitCode)
	assert.Equal(t, 1, results[0].Attempt)
	assert.Equal(t, []string{"hello"}, results[0].Output)
	assert.False(t, Failed(results))
}

func TestRunnerRetriesThenSucceeds(t *testing.T) {
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		if call < 3 {
			return 1, nil
		}
		return 0, nil
	}}
	runner := NewRunner(RunnerOptions{Execer: execer, Config: fastConfig()})

	results := runner.Run(context.Background(), "dev-env", models.PhasePostStart,
		[]models.ScriptSpec{customScript(models.PhasePostStart)})

	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].ExitCode)
	assert.Equal(t, 1, results[1].ExitCode)
	assert.True(t, results[2].Success())
	assert.Equal(t, 3, results[2].Attempt)
	assert.False(t, Failed(results), "a retried success must not fail the phase")
}

func TestRunnerExhaustsRetries(t *testing.T) {
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		return 7, nil
	}}
	runner := NewRunner(RunnerOptions{Execer: execer, Config: fastConfig()})

	results := runner.Run(context.Background(), "dev-env", models.PhasePreStop,
		[]models.ScriptSpec{customScript(models.PhasePreStop)})

	require.Len(t, results, 3)
	assert.Equal(t, 3, execer.callCount())
	for _, r := range results {
		assert.Equal(t, 7, r.ExitCode)
		assert.Contains(t, r.Error, "exited with code 7")
	}
	assert.True(t, Failed(results))
}

func TestRunnerTimeoutMarksAttempt(t *testing.T) {
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		time.Sleep(50 * time.Millisecond)
		return -1, context.DeadlineExceeded
	}}
	cfg := fastConfig()
	cfg.InitTimeout = 10 * time.Millisecond
	cfg.MaxAttempts = 2
	runner := NewRunner(RunnerOptions{Execer: execer, Config: cfg})

	results := runner.Run(context.Background(), "dev-env", models.PhasePostStart,
		[]models.ScriptSpec{customScript(models.PhasePostStart)})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.TimedOut)
		assert.False(t, r.Success())
		assert.Contains(t, r.Error, "timed out")
	}
	assert.True(t, Failed(results))
}

func TestRunnerDefaultFailureDoesNotAbortCustom(t *testing.T) {
	var order []models.ScriptOrigin
	var mu sync.Mutex
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		// First three calls are the default script's attempts.
		if call <= 3 {
			order = append(order, models.OriginDefault)
			return 1, nil
		}
		order = append(order, models.OriginCustom)
		return 0, nil
	}}
	runner := NewRunner(RunnerOptions{Execer: execer, Config: fastConfig()})

	results := runner.Run(context.Background(), "dev-env", models.PhasePostStart, []models.ScriptSpec{
		defaultScript(models.PhasePostStart),
		customScript(models.PhasePostStart),
	})

	require.Len(t, results, 4)
	assert.Equal(t, models.OriginDefault, results[0].Origin)
	assert.Equal(t, models.OriginCustom, results[3].Origin)
	assert.True(t, results[3].Success(), "custom script must still run after the default exhausts retries")
	assert.True(t, Failed(results), "the exhausted default still fails the phase")
	assert.Equal(t, []models.ScriptOrigin{
		models.OriginDefault, models.OriginDefault, models.OriginDefault, models.OriginCustom,
	}, order)
}

func TestRunnerStopsRetryingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		cancel()
		return 1, nil
	}}
	runner := NewRunner(RunnerOptions{Execer: execer, Config: fastConfig()})

	results := runner.Run(ctx, "dev-env", models.PhasePostStart, []models.ScriptSpec{
		customScript(models.PhasePostStart),
		customScript(models.PhasePostStart),
	})

	require.Len(t, results, 1, "no retries and no further scripts after cancellation")
	assert.Equal(t, 1, execer.callCount())
}

func TestRunnerSkipsOtherPhases(t *testing.T) {
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		return 0, nil
	}}
	runner := NewRunner(RunnerOptions{Execer: execer, Config: fastConfig()})

	results := runner.Run(context.Background(), "dev-env", models.PhasePostStart,
		[]models.ScriptSpec{customScript(models.PhasePreStop)})

	assert.Empty(t, results)
	assert.Zero(t, execer.callCount())
}

func TestRunnerTruncatesOutput(t *testing.T) {
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		for i := 0; i < 10; i++ {
			fmt.Fprintf(stdout, "line %d\n", i)
		}
		return 0, nil
	}}
	cfg := fastConfig()
	cfg.MaxOutputLines = 4
	runner := NewRunner(RunnerOptions{Execer: execer, Config: cfg})

	results := runner.Run(context.Background(), "dev-env", models.PhasePostStart,
		[]models.ScriptSpec{customScript(models.PhasePostStart)})

	require.Len(t, results, 1)
	assert.Len(t, results[0].Output, 4)
	assert.True(t, results[0].Truncated)
	assert.Equal(t, "line 0", results[0].Output[0])
}

func TestRunnerTagsStderr(t *testing.T) {
	execer := &fakeExecer{fn: func(call int, cmd []string, stdout, stderr io.Writer) (int, error) {
		fmt.Fprintln(stdout, "out")
		fmt.Fprintln(stderr, "oops")
		return 0, nil
	}}
	runner := NewRunner(RunnerOptions{Execer: execer, Config: fastConfig()})

	results := runner.Run(context.Background(), "dev-env", models.PhasePostStart,
		[]models.ScriptSpec{customScript(models.PhasePostStart)})

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Output, "out")
	assert.Contains(t, results[0].Output, "stderr| oops")
}

func TestFailedLastAttemptDecides(t *testing.T) {
	results := []models.ScriptResult{
		{Origin: models.OriginDefault, Attempt: 1, ExitCode: 1, Error: "exited with code 1"},
		{Origin: models.OriginDefault, Attempt: 2, ExitCode: 0},
	}
	assert.False(t, Failed(results))

	results = append(results, models.ScriptResult{Origin: models.OriginCustom, Attempt: 1, ExitCode: 2, Error: "exited with code 2"})
	assert.True(t, Failed(results))
}
