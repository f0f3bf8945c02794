// Package availability runs debounced "is this name free" checks for the
// settings forms.
package availability

import (
	"context"
	"sync"
	"time"

	"github.com/tkilaker/inkdesk/internal/logging"
)

// DefaultDebounce is the quiet period before a check is sent
const DefaultDebounce = 500 * time.Millisecond

// Status is the outcome shown next to the field
type Status int

const (
	StatusIdle Status = iota
	StatusInvalid
	StatusUnchanged
	StatusChecking
	StatusAvailable
	StatusTaken
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusUnchanged:
		return "unchanged"
	case StatusChecking:
		return "checking"
	case StatusAvailable:
		return "available"
	case StatusTaken:
		return "taken"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// State is the checker state for the latest input
type State struct {
	Value   string `json:"value"`
	Status  Status `json:"-"`
	Label   string `json:"status"`
	Message string `json:"message,omitempty"`
}

// CanSubmit reports whether the form may be submitted with this value
func (s State) CanSubmit() bool {
	return s.Status == StatusAvailable
}

// CheckFunc asks the backend whether value is free
type CheckFunc func(ctx context.Context, value string) (bool, error)

// Timer is the part of *time.Timer the checker uses
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d
type AfterFunc func(d time.Duration, f func()) Timer

// Messages are the texts shown for each outcome
type Messages struct {
	Unchanged string
	Available string
	Taken     string
	Failed    string
}

// Option configures a Checker
type Option func(*Checker)

// WithDebounce sets the quiet period
func WithDebounce(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithAfterFunc replaces the timer source, mainly for tests
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Checker) { c.afterFunc = fn }
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMessages overrides the outcome texts
func WithMessages(m Messages) Option {
	return func(c *Checker) { c.messages = m }
}

// Checker debounces input and only lets the latest scheduled check update
// its state
type Checker struct {
	check     CheckFunc
	validate  func(string) error
	debounce  time.Duration
	afterFunc AfterFunc
	logger    logging.Logger
	messages  Messages

	mu      sync.Mutex
	current string
	state   State
	seq     uint64
	timer   Timer
	cancel  context.CancelFunc
	closed  bool
}

// NewChecker creates a checker. validate runs synchronously on every input.
func NewChecker(check CheckFunc, validate func(string) error, opts ...Option) *Checker {
	c := &Checker{
		check:    check,
		validate: validate,
		debounce: DefaultDebounce,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger: logging.NoOp(),
		messages: Messages{
			Unchanged: "This is your current value",
			Available: "Available",
			Taken:     "Already taken",
			Failed:    "Could not check availability",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = c.newState("", StatusIdle, "")
	return c
}

// SetCurrent records the value the account already has
func (c *Checker) SetCurrent(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = value
}

// State returns the latest state
func (c *Checker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Input handles a new field value. Any pending or running check is
// abandoned. Valid values that differ from the current one are checked
// after the debounce window.
func (c *Checker) Input(value string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state
	}

	c.stopLocked()
	c.seq++

	switch {
	case value == c.current && value != "":
		c.state = c.newState(value, StatusUnchanged, c.messages.Unchanged)
		return c.state
	case value == "":
		c.state = c.newState(value, StatusIdle, "")
		return c.state
	}
	if c.validate != nil {
		if err := c.validate(value); err != nil {
			c.state = c.newState(value, StatusInvalid, err.Error())
			return c.state
		}
	}

	id := c.seq
	c.state = c.newState(value, StatusChecking, "")
	c.timer = c.afterFunc(c.debounce, func() { c.run(id, value) })
	return c.state
}

func (c *Checker) run(id uint64, value string) {
	c.mu.Lock()
	if c.closed || id != c.seq {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	available, err := c.check(ctx, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if c.closed || id != c.seq {
		return
	}
	c.cancel = nil
	switch {
	case err != nil:
		c.logger.Warn("availability check failed", "value", value, "error", err)
		c.state = c.newState(value, StatusError, c.messages.Failed)
	case available:
		c.state = c.newState(value, StatusAvailable, c.messages.Available)
	default:
		c.state = c.newState(value, StatusTaken, c.messages.Taken)
	}
}

// Close stops pending timers and cancels a running check. Later inputs are
// ignored.
func (c *Checker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.closed = true
}

func (c *Checker) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Checker) newState(value string, status Status, msg string) State {
	return State{Value: value, Status: status, Label: status.String(), Message: msg}
}
