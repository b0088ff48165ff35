package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Reason classifies why an invocation did not execute successfully.
type Reason string

const (
	ReasonError               Reason = "error"
	ReasonCooldown            Reason = "cooldown"
	ReasonInvalidArguments    Reason = "invalid_arguments"
	ReasonMissingArguments    Reason = "missing_arguments"
	ReasonPreconditionTrigger Reason = "precondition_trigger"
)

// Trigger is the payload every halt handler receives.
type Trigger struct {
	Reason Reason

	Err     error    // ReasonError
	Missing []string // ReasonMissingArguments
	Invalid []string // ReasonInvalidArguments

	CooldownEndsAt time.Time // ReasonCooldown

	Precondition     string // id of the vetoing precondition
	PreconditionData any
	Message          string

	Invocation *Invocation
	Command    *Descriptor
	Args       *Args
}

// Result is the terminal record of one halt-chain traversal.
type Result struct {
	HandledBy  string
	Successful bool
	Message    string
	Data       any
	Trigger    *Trigger
}

// HaltFunc handles a failed invocation. Return (nil, nil) to pass the trigger
// on, a Result to claim it, or an error when the handler itself is broken.
type HaltFunc func(ctx context.Context, t *Trigger) (*Result, error)

// Handled is the result of a handler that dealt with the failure.
func Handled() *Result { return &Result{Successful: true} }

// HandledWith is Handled carrying a message and data.
func HandledWith(message string, data any) *Result {
	return &Result{Successful: true, Message: message, Data: data}
}

// Failed claims the failure but reports it as unsuccessful with a message.
func Failed(message string) *Result { return &Result{Message: message} }

// FailedErr is Failed using err's text.
func FailedErr(err error) *Result { return &Result{Message: err.Error(), Data: err} }

// ExecutionError wraps an error returned (or a panic raised) by a command's
// execute function.
type ExecutionError struct {
	Command Key
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// HaltHandlerError is returned when a halt handler fails. It is never
// recovered by the chain.
type HaltHandlerError struct {
	Handler string
	Err     error
}

func (e *HaltHandlerError) Error() string {
	return fmt.Sprintf("halt handler %s failed: %v", e.Handler, e.Err)
}

func (e *HaltHandlerError) Unwrap() error { return e.Err }

// CommandHaltID is the HandledBy value of a command's own halt function.
const CommandHaltID = "command"

var ErrDuplicateHandler = errors.New("halt handler already registered")

type haltHandler struct {
	id string
	fn HaltFunc
}

// HaltChain holds the global halt handlers in registration order.
type HaltChain struct {
	mu       sync.RWMutex
	handlers []haltHandler
}

// NewHaltChain returns an empty chain.
func NewHaltChain() *HaltChain {
	return &HaltChain{}
}

// Register appends a global handler.
func (c *HaltChain) Register(id string, fn HaltFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.handlers {
		if h.id == id {
			return fmt.Errorf("%w: %s", ErrDuplicateHandler, id)
		}
	}
	c.handlers = append(c.handlers, haltHandler{id: id, fn: fn})
	return nil
}

// Unregister removes a global handler.
func (c *HaltChain) Unregister(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, h := range c.handlers {
		if h.id == id {
			c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of global handlers.
func (c *HaltChain) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Run walks [command halt, global halts...] in order and stops at the first
// handler returning a result. It returns (nil, nil) when nobody claimed the
// trigger. A nil chain still runs the command's own halt.
func (c *HaltChain) Run(ctx context.Context, t *Trigger) (*Result, error) {
	if c == nil {
		c = &HaltChain{}
	}
	c.mu.RLock()
	chain := make([]haltHandler, 0, len(c.handlers)+1)
	if t.Command != nil && t.Command.Halt != nil {
		chain = append(chain, haltHandler{id: CommandHaltID, fn: t.Command.Halt})
	}
	chain = append(chain, c.handlers...)
	c.mu.RUnlock()

	for _, h := range chain {
		res, err := h.fn(ctx, t)
		if err != nil {
			return nil, &HaltHandlerError{Handler: h.id, Err: err}
		}
		if res != nil {
			res.HandledBy = h.id
			res.Trigger = t
			return res, nil
		}
	}
	return nil, nil
}
