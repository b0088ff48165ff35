package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/modkit/pkg/events"
)

var ErrUnknownCommand = errors.New("unknown command")

// Executed is published on events.TopicCommandExecute after a successful run.
type Executed struct {
	InvocationID string
	Command      Key
	Module       string
	CallerID     string
	GuildID      string
	ChannelID    string
	At           time.Time
	Duration     time.Duration
}

// Halted is published on events.TopicCommandHalt after every halt-chain run.
type Halted struct {
	InvocationID string
	Command      Key
	Module       string
	Reason       Reason
	Handled      bool
	Result       *Result
	Trigger      *Trigger
}

// Outcome reports what happened to one invocation: either it executed, or a
// trigger went through the halt chain (Halt is nil when nobody claimed it).
type Outcome struct {
	Executed bool
	Trigger  *Trigger
	Halt     *Result
}

// Pipeline resolves arguments, runs preconditions and executes commands,
// routing every failure to the halt chain.
type Pipeline struct {
	registry      *Registry
	preconditions *PreconditionChain
	halts         *HaltChain
	bus           events.Publisher
	log           zerolog.Logger
	now           func() time.Time
	warnUnhandled bool
	middleware    []Middleware
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithPreconditions(c *PreconditionChain) PipelineOption {
	return func(p *Pipeline) { p.preconditions = c }
}

func WithHalts(c *HaltChain) PipelineOption {
	return func(p *Pipeline) { p.halts = c }
}

func WithPublisher(pub events.Publisher) PipelineOption {
	return func(p *Pipeline) { p.bus = pub }
}

func WithLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithUnhandledWarning logs a warning whenever no halt handler claims a
// failure. Without it such failures are dropped silently.
func WithUnhandledWarning(on bool) PipelineOption {
	return func(p *Pipeline) { p.warnUnhandled = on }
}

// NewPipeline returns a pipeline dispatching commands from registry.
func NewPipeline(registry *Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		registry:      registry,
		preconditions: &PreconditionChain{},
		halts:         NewHaltChain(),
		bus:           events.Nop{},
		log:           zerolog.Nop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Preconditions() *PreconditionChain { return p.preconditions }
func (p *Pipeline) Halts() *HaltChain                 { return p.halts }

// Dispatch looks up a live command and executes it.
func (p *Pipeline) Dispatch(ctx context.Context, kind Kind, name string, inv *Invocation) (*Outcome, error) {
	d, ok := p.registry.Lookup(kind, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", ErrUnknownCommand, kind, name)
	}
	return p.Execute(ctx, d, inv)
}

// Execute runs one invocation of d. Exactly one of execution or a halt-chain
// run happens. The only error returned is a *HaltHandlerError.
func (p *Pipeline) Execute(ctx context.Context, d *Descriptor, inv *Invocation) (*Outcome, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	started := p.now()

	in := inv.Input
	if d.Kind == KindMessage && in.Args == nil && in.Flags == nil && in.Named == nil {
		in = ParseInput(inv.Text, d.Flags)
	}
	args := Resolve(ctx, d, in)

	base := Trigger{Invocation: inv, Command: d, Args: args}
	if missing := args.Missing(); len(missing) > 0 {
		t := base
		t.Reason, t.Missing = ReasonMissingArguments, missing
		return p.halt(ctx, &t)
	}
	if invalid := args.Invalid(); len(invalid) > 0 {
		t := base
		t.Reason, t.Invalid = ReasonInvalidArguments, invalid
		return p.halt(ctx, &t)
	}

	if v := p.preconditions.Run(ctx, d.Kind, inv, d); v != nil {
		t := base
		t.Reason = v.Reason
		t.Precondition, t.PreconditionData, t.Message = v.Precondition, v.Data, v.Message
		t.CooldownEndsAt = v.EndsAt
		return p.halt(ctx, &t)
	}

	if err := p.invoke(ctx, d, inv, args); err != nil {
		t := base
		t.Reason, t.Err = ReasonError, &ExecutionError{Command: d.Key(), Err: err}
		return p.halt(ctx, &t)
	}

	p.bus.Publish(events.TopicCommandExecute, Executed{
		InvocationID: inv.ID,
		Command:      d.Key(),
		Module:       d.Module,
		CallerID:     inv.CallerID,
		GuildID:      inv.GuildID,
		ChannelID:    inv.ChannelID,
		At:           started,
		Duration:     p.now().Sub(started),
	})
	return &Outcome{Executed: true}, nil
}

func (p *Pipeline) invoke(ctx context.Context, d *Descriptor, inv *Invocation, args *Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.run(ctx, d, inv, args)
}

func (p *Pipeline) halt(ctx context.Context, t *Trigger) (*Outcome, error) {
	res, err := p.halts.Run(ctx, t)
	if err != nil {
		p.log.Error().
			Err(err).
			Str("event", "command.halt_handler_failed").
			Str("command", t.Command.Key().String()).
			Str("reason", string(t.Reason)).
			Msg("halt handler failed")
		p.publishHalt(t, nil)
		return &Outcome{Trigger: t}, err
	}

	if res == nil && p.warnUnhandled {
		ev := p.log.Warn().
			Str("event", "command.halt_unhandled").
			Str("command", t.Command.Key().String()).
			Str("reason", string(t.Reason)).
			Str("invocation", t.Invocation.ID)
		if t.Err != nil {
			ev = ev.Err(t.Err)
		}
		ev.Msg("no halt handler claimed the failure")
	}
	p.publishHalt(t, res)
	return &Outcome{Trigger: t, Halt: res}, nil
}

func (p *Pipeline) publishHalt(t *Trigger, res *Result) {
	p.bus.Publish(events.TopicCommandHalt, Halted{
		InvocationID: t.Invocation.ID,
		Command:      t.Command.Key(),
		Module:       t.Command.Module,
		Reason:       t.Reason,
		Handled:      res != nil,
		Result:       res,
		Trigger:      t,
	})
}
