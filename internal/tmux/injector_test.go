package tmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askrelay/daemon/internal/logging"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(nopWriteCloser{io.Discard})
}

// fakeRunner records every command and can fail a specific call.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	failCall int // 1-based index of the call to fail; 0 means never
	failErr  error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if f.failCall > 0 && len(f.calls) == f.failCall {
		return f.failErr
	}
	return nil
}

func (f *fakeRunner) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestInjector(runner Runner) *Injector {
	return NewInjectorWithRunner(testLogger(), runner, 0)
}

func TestInjectSingleResponse(t *testing.T) {
	runner := &fakeRunner{}
	inj := newTestInjector(runner)

	err := inj.Inject(context.Background(), "main:0.1", []string{"Yes"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"tmux has-session -t main",
		"tmux send-keys -t main:0.1 -l Yes",
		"tmux send-keys -t main:0.1 Enter",
	}, runner.recorded())
}

func TestInjectMultipleResponsesInOrderWithFinalSubmit(t *testing.T) {
	runner := &fakeRunner{}
	inj := newTestInjector(runner)

	err := inj.Inject(context.Background(), "work:2.0", []string{"Go", "Table tests"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"tmux has-session -t work",
		"tmux send-keys -t work:2.0 -l Go",
		"tmux send-keys -t work:2.0 Enter",
		"tmux send-keys -t work:2.0 -l Table tests",
		"tmux send-keys -t work:2.0 Enter",
		"tmux send-keys -t work:2.0 Enter",
	}, runner.recorded())
}

func TestInjectEmptyResponsesIsNoOp(t *testing.T) {
	runner := &fakeRunner{}
	inj := newTestInjector(runner)

	require.NoError(t, inj.Inject(context.Background(), "main:0.1", nil))
	assert.Empty(t, runner.recorded())
}

func TestInjectUnknownLocation(t *testing.T) {
	runner := &fakeRunner{}
	inj := newTestInjector(runner)

	for _, loc := range []string{"", "unknown"} {
		err := inj.Inject(context.Background(), loc, []string{"Yes"})
		assert.ErrorIs(t, err, ErrSessionNotFound, "location %q", loc)
	}
	assert.Empty(t, runner.recorded(), "no tmux call before a usable location")
}

func TestInjectSessionProbeFailure(t *testing.T) {
	runner := &fakeRunner{failCall: 1, failErr: fmt.Errorf("exit status 1")}
	inj := newTestInjector(runner)

	err := inj.Inject(context.Background(), "gone:0.0", []string{"Yes"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Len(t, runner.recorded(), 1, "delivery must not start when the probe fails")
}

func TestInjectAbortsOnMidSequenceFailure(t *testing.T) {
	// Fail the Enter after the first response of a two-response sequence.
	runner := &fakeRunner{failCall: 3, failErr: errors.New("pane vanished")}
	inj := newTestInjector(runner)

	err := inj.Inject(context.Background(), "main:0.1", []string{"Go", "Rust"})
	assert.ErrorIs(t, err, ErrInjectionFailed)
	assert.Len(t, runner.recorded(), 3, "remaining steps are skipped after a failure")
}

func TestInjectCancelledContext(t *testing.T) {
	runner := &fakeRunner{}
	inj := NewInjectorWithRunner(testLogger(), runner, DefaultSettleDelay)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := inj.Inject(ctx, "main:0.1", []string{"Go", "Rust"})
	assert.ErrorIs(t, err, ErrInjectionFailed)
}

func TestInjectSerializesPerTarget(t *testing.T) {
	var mu sync.Mutex
	active := 0
	maxActive := 0

	runner := runnerFunc(func(ctx context.Context, name string, args ...string) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			active--
			mu.Unlock()
		}()
		time.Sleep(time.Millisecond)
		return nil
	})
	inj := NewInjectorWithRunner(testLogger(), runner, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = inj.Inject(context.Background(), "same:0.0", []string{"a", "b"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "same-target injections must not interleave")
}

type runnerFunc func(ctx context.Context, name string, args ...string) error

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}
