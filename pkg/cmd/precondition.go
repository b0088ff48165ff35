package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Veto is returned by a precondition that blocks an invocation.
type Veto struct {
	Precondition string // filled in by the chain
	Reason       Reason // ReasonPreconditionTrigger unless set
	Message      string
	Data         any
	EndsAt       time.Time // cooldown vetoes
}

// CheckFunc inspects an invocation before execution. Returning nil lets it
// through. A check may have side effects even when it passes.
type CheckFunc func(ctx context.Context, kind Kind, inv *Invocation, d *Descriptor) *Veto

// Precondition is one named gate of the chain.
type Precondition struct {
	ID       string
	Disabled bool
	Check    CheckFunc
}

var (
	ErrDuplicatePrecondition = errors.New("precondition already registered")
	ErrUnknownPrecondition   = errors.New("unknown precondition")
)

// PreconditionChain runs its preconditions in registration order and stops at
// the first veto.
type PreconditionChain struct {
	mu   sync.RWMutex
	list []Precondition
}

// NewPreconditionChain returns a chain holding ps in order.
func NewPreconditionChain(ps ...Precondition) (*PreconditionChain, error) {
	c := &PreconditionChain{}
	for _, p := range ps {
		if err := c.Register(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register appends p.
func (c *PreconditionChain) Register(p Precondition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.list {
		if existing.ID == p.ID {
			return fmt.Errorf("%w: %s", ErrDuplicatePrecondition, p.ID)
		}
	}
	c.list = append(c.list, p)
	return nil
}

// SetDisabled toggles a precondition without changing its position.
func (c *PreconditionChain) SetDisabled(id string, disabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.list {
		if c.list[i].ID == id {
			c.list[i].Disabled = disabled
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownPrecondition, id)
}

// IDs returns the precondition ids in chain order.
func (c *PreconditionChain) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.list))
	for i, p := range c.list {
		ids[i] = p.ID
	}
	return ids
}

// Run checks every enabled precondition in order. Disabled ones are skipped
// without being called.
func (c *PreconditionChain) Run(ctx context.Context, kind Kind, inv *Invocation, d *Descriptor) *Veto {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	list := append([]Precondition(nil), c.list...)
	c.mu.RUnlock()

	for _, p := range list {
		if p.Disabled || p.Check == nil {
			continue
		}
		if v := p.Check(ctx, kind, inv, d); v != nil {
			v.Precondition = p.ID
			if v.Reason == "" {
				v.Reason = ReasonPreconditionTrigger
			}
			return v
		}
	}
	return nil
}
