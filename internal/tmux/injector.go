// Package tmux delivers answer keystrokes into the agent's tmux pane.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/askrelay/daemon/internal/logging"
)

const (
	// DefaultSettleDelay is the pause after each confirmed answer. The
	// multi-select prompt advances its cursor on each Enter and needs time
	// before the next keystrokes arrive.
	DefaultSettleDelay = 800 * time.Millisecond

	// DefaultCommandTimeout bounds each tmux invocation.
	DefaultCommandTimeout = 5 * time.Second
)

var (
	// ErrSessionNotFound indicates the target tmux session does not exist
	// or the target location is unusable.
	ErrSessionNotFound = errors.New("tmux session not found")

	// ErrInjectionFailed indicates keystroke delivery broke partway. Already
	// delivered keystrokes are not rolled back; tmux has no undo.
	ErrInjectionFailed = errors.New("tmux injection failed")
)

// Runner executes one external command. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct {
	timeout time.Duration
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Run()
}

// Injector replays answers into tmux panes. Injections into the same target
// location are serialized so concurrent handlers cannot interleave
// keystrokes; different locations proceed independently.
type Injector struct {
	runner Runner
	delay  time.Duration
	logger *logging.Logger

	mu      sync.Mutex
	targets map[string]*sync.Mutex
}

// NewInjector creates an injector shelling out to tmux. A non-positive delay
// or timeout falls back to the defaults.
func NewInjector(logger *logging.Logger, delay, cmdTimeout time.Duration) *Injector {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	if cmdTimeout <= 0 {
		cmdTimeout = DefaultCommandTimeout
	}
	return &Injector{
		runner:  &execRunner{timeout: cmdTimeout},
		delay:   delay,
		logger:  logger,
		targets: make(map[string]*sync.Mutex),
	}
}

// NewInjectorWithRunner creates an injector using a custom command runner.
func NewInjectorWithRunner(logger *logging.Logger, runner Runner, delay time.Duration) *Injector {
	return &Injector{
		runner:  runner,
		delay:   delay,
		logger:  logger,
		targets: make(map[string]*sync.Mutex),
	}
}

// Inject delivers the responses to the pane at location ("session:window.pane").
//
// A single response is typed and confirmed once. Multiple responses follow
// the multi-select protocol: each response is typed literally, confirmed
// with Enter and given a settle delay, then after one more delay a final
// Enter submits the accumulated set. Order is load-bearing: the prompt walks
// its items in the same order the responses arrive.
func (i *Injector) Inject(ctx context.Context, location string, responses []string) error {
	if len(responses) == 0 {
		return nil
	}
	if location == "" || location == "unknown" {
		return fmt.Errorf("%w: no tmux location", ErrSessionNotFound)
	}

	lock := i.targetLock(location)
	lock.Lock()
	defer lock.Unlock()

	session, _, _ := strings.Cut(location, ":")
	if err := i.runner.Run(ctx, "tmux", "has-session", "-t", session); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session)
	}

	if len(responses) == 1 {
		if err := i.sendLine(ctx, location, responses[0]); err != nil {
			return err
		}
		i.logger.Info("injected response", "tmux_location", location)
		return nil
	}

	for _, response := range responses {
		if err := i.sendLine(ctx, location, response); err != nil {
			return err
		}
		if err := i.settle(ctx); err != nil {
			return err
		}
	}

	// One more settle, then a final Enter to submit the whole set.
	if err := i.settle(ctx); err != nil {
		return err
	}
	if err := i.sendEnter(ctx, location); err != nil {
		return err
	}

	i.logger.Info("injected responses and submitted",
		"tmux_location", location,
		"count", len(responses),
	)
	return nil
}

// sendLine types text literally and confirms it with Enter.
func (i *Injector) sendLine(ctx context.Context, location, text string) error {
	// -l sends the text as literal keystrokes, no key-name interpretation.
	if err := i.runner.Run(ctx, "tmux", "send-keys", "-t", location, "-l", text); err != nil {
		return fmt.Errorf("%w: send-keys: %v", ErrInjectionFailed, err)
	}
	return i.sendEnter(ctx, location)
}

func (i *Injector) sendEnter(ctx context.Context, location string) error {
	if err := i.runner.Run(ctx, "tmux", "send-keys", "-t", location, "Enter"); err != nil {
		return fmt.Errorf("%w: send-keys Enter: %v", ErrInjectionFailed, err)
	}
	return nil
}

func (i *Injector) settle(ctx context.Context) error {
	if i.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(i.delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrInjectionFailed, ctx.Err())
	}
}

func (i *Injector) targetLock(location string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	lock, ok := i.targets[location]
	if !ok {
		lock = &sync.Mutex{}
		i.targets[location] = lock
	}
	return lock
}
