package module

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/modkit/pkg/cmd"
	"github.com/keshon/modkit/pkg/events"
)

var (
	// ErrBusy is returned when another lifecycle operation holds the module.
	ErrBusy = errors.New("module is busy with another lifecycle operation")
	// ErrNotEligible is returned when a module's state does not allow the stage.
	ErrNotEligible = errors.New("module state does not allow this stage")
	// ErrStartAborted is returned when OnStart reports false without an error.
	ErrStartAborted = errors.New("start aborted by module")
	ErrNotTracked   = errors.New("module is not tracked")
)

// HookError wraps a failure raised by a lifecycle hook, including panics.
type HookError struct {
	Module string
	Stage  Stage
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("module %s: %s hook: %v", e.Module, e.Stage, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Report is the outcome of one module within a batch.
type Report struct {
	ID    string
	Name  string
	Stage Stage
	State State
	Err   error
	// Noop is set when the module was already past the stage.
	Noop bool
	// Rejected lists commands that lost a name collision during start.
	Rejected []*cmd.ConflictError
}

// OK reports whether the stage succeeded for the module.
func (r Report) OK() bool { return r.Err == nil }

// Manager drives modules through start, load and unload and keeps the command
// registry in step with their states.
type Manager struct {
	registry *cmd.Registry
	resolver *Resolver
	bus      events.Publisher
	log      zerolog.Logger
	host     any

	mu      sync.RWMutex
	modules map[string]*Module
}

type ManagerOption func(*Manager)

func WithPublisher(pub events.Publisher) ManagerOption {
	return func(m *Manager) { m.bus = pub }
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithHost sets the value exposed to hooks as Context.Host.
func WithHost(host any) ManagerOption {
	return func(m *Manager) { m.host = host }
}

// NewManager returns a manager writing into registry. resolver is only needed
// for Reload and may be nil otherwise.
func NewManager(registry *cmd.Registry, resolver *Resolver, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		resolver: resolver,
		bus:      events.Nop{},
		log:      zerolog.Nop(),
		modules:  make(map[string]*Module),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Registry() *cmd.Registry { return m.registry }

// Get returns the tracked module with id.
func (m *Manager) Get(id string) (*Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.modules[id]
	return mod, ok
}

// State returns the state of a tracked module.
func (m *Manager) State(id string) (State, bool) {
	mod, ok := m.Get(id)
	if !ok {
		return Unresolved, false
	}
	return mod.State(), true
}

// Modules returns every tracked module ordered by name then id.
func (m *Manager) Modules() []*Module {
	m.mu.RLock()
	out := make([]*Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// track adopts mod, or returns the instance already tracked under its id.
// A tracked instance that failed is replaced by a fresh one.
func (m *Manager) track(mod *Module) *Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	if have, ok := m.modules[mod.ID]; ok && (have == mod || !have.State().Failed()) {
		return have
	}
	m.modules[mod.ID] = mod
	return mod
}

func (m *Manager) forget(mod *Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modules[mod.ID] == mod {
		delete(m.modules, mod.ID)
	}
}

// batch dedups mods by id, tracks them and takes each module's operation lock.
// Modules whose lock is held elsewhere get an ErrBusy report and are left out.
func (m *Manager) batch(mods []*Module, stage Stage, adopt bool) (locked []*Module, idx []int, reports []Report) {
	seen := make(map[string]bool, len(mods))
	for _, mod := range mods {
		if mod == nil || seen[mod.ID] {
			continue
		}
		seen[mod.ID] = true
		if adopt {
			mod = m.track(mod)
		} else if have, ok := m.Get(mod.ID); ok {
			mod = have
		}
		r := Report{ID: mod.ID, Name: mod.Name, Stage: stage}
		if !mod.op.TryLock() {
			r.State, r.Err = mod.State(), ErrBusy
			reports = append(reports, r)
			continue
		}
		locked = append(locked, mod)
		idx = append(idx, len(reports))
		reports = append(reports, r)
	}
	return locked, idx, reports
}

// StartModules runs OnStart for every module concurrently, then merges the
// commands of those that succeeded into the registry in batch order. A name
// already owned by another module is rejected per command. Modules already
// started are left untouched.
func (m *Manager) StartModules(ctx context.Context, mods []*Module) []Report {
	locked, idx, reports := m.batch(mods, StageStart, true)
	defer unlockAll(locked)

	ok := make([]bool, len(locked))
	var g errgroup.Group
	for i, mod := range locked {
		r := &reports[idx[i]]
		switch st := mod.State(); st {
		case Started, Loaded:
			r.State, r.Noop = st, true
			continue
		case Resolved:
		default:
			r.State, r.Err = st, fmt.Errorf("%w: cannot start from %s", ErrNotEligible, st)
			continue
		}
		g.Go(func() error {
			ok[i] = m.runStart(ctx, mod, r)
			return nil
		})
	}
	_ = g.Wait()

	for i, mod := range locked {
		if !ok[i] {
			continue
		}
		r := &reports[idx[i]]
		for _, d := range mod.Commands() {
			if err := m.registry.Add(mod.ID, d); err != nil {
				var ce *cmd.ConflictError
				if errors.As(err, &ce) {
					r.Rejected = append(r.Rejected, ce)
				}
				m.log.Warn().
					Err(err).
					Str("event", "module.command_rejected").
					Str("module", mod.Name).
					Str("command", d.Key().String()).
					Msg("command name already taken")
			}
		}
		m.transition(mod, StageStart, PhaseAfter, Started, nil)
		r.State = Started
		m.log.Info().
			Str("event", "module.started").
			Str("module", mod.Name).
			Int("commands", len(mod.Commands())-len(r.Rejected)).
			Int("rejected", len(r.Rejected)).
			Msg("module started")
	}
	return reports
}

func (m *Manager) runStart(ctx context.Context, mod *Module, r *Report) bool {
	m.transition(mod, StageStart, PhaseBefore, Starting, nil)

	var started bool
	err := m.call(mod, StageStart, func() error {
		if mod.onStart == nil {
			started = true
			return nil
		}
		var err error
		started, err = mod.onStart(ctx, m.hookContext(mod))
		return err
	})
	if err == nil && !started {
		err = &HookError{Module: mod.Name, Stage: StageStart, Err: ErrStartAborted}
	}
	if err != nil {
		m.transition(mod, StageStart, PhaseError, StartFailed, err)
		r.State, r.Err = StartFailed, err
		return false
	}
	return true
}

// LoadModules runs OnLoad for started modules and makes their commands live.
// A failed load removes the module's commands from the registry.
func (m *Manager) LoadModules(ctx context.Context, mods []*Module) []Report {
	locked, idx, reports := m.batch(mods, StageLoad, false)
	defer unlockAll(locked)

	var g errgroup.Group
	for i, mod := range locked {
		r := &reports[idx[i]]
		switch st := mod.State(); st {
		case Loaded:
			r.State, r.Noop = st, true
			continue
		case Started:
		default:
			r.State, r.Err = st, fmt.Errorf("%w: cannot load from %s", ErrNotEligible, st)
			continue
		}
		g.Go(func() error {
			m.runLoad(ctx, mod, r)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (m *Manager) runLoad(ctx context.Context, mod *Module, r *Report) {
	m.transition(mod, StageLoad, PhaseBefore, Loading, nil)

	err := m.call(mod, StageLoad, func() error {
		if mod.onLoad == nil {
			return nil
		}
		return mod.onLoad(ctx, m.hookContext(mod))
	})
	if err != nil {
		removed := m.registry.RemoveModule(mod.ID)
		m.transition(mod, StageLoad, PhaseError, LoadFailed, err)
		r.State, r.Err = LoadFailed, err
		m.log.Error().
			Err(err).
			Str("event", "module.load_failed").
			Str("module", mod.Name).
			Int("removed_commands", len(removed)).
			Msg("module failed to load")
		return
	}

	live := m.registry.SetLive(mod.ID, true)
	m.transition(mod, StageLoad, PhaseAfter, Loaded, nil)
	r.State = Loaded
	m.log.Info().
		Str("event", "module.loaded").
		Str("module", mod.Name).
		Int("live_commands", live).
		Msg("module loaded")
}

// UnloadModules runs OnUnload for started or loaded modules. Whatever the hook
// does, the module's commands leave the registry, the module ends Unloaded and
// it stops being tracked. A hook failure is reported in the module's Report.
func (m *Manager) UnloadModules(ctx context.Context, mods []*Module, reason string) []Report {
	locked, idx, reports := m.batch(mods, StageUnload, false)
	defer unlockAll(locked)

	var g errgroup.Group
	for i, mod := range locked {
		r := &reports[idx[i]]
		switch st := mod.State(); st {
		case Started, Loaded:
		default:
			r.State, r.Err = st, fmt.Errorf("%w: cannot unload from %s", ErrNotEligible, st)
			continue
		}
		g.Go(func() error {
			m.runUnload(ctx, mod, reason, r)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (m *Manager) runUnload(ctx context.Context, mod *Module, reason string, r *Report) {
	m.transition(mod, StageUnload, PhaseBefore, Unloading, nil)

	err := m.call(mod, StageUnload, func() error {
		if mod.onUnload == nil {
			return nil
		}
		return mod.onUnload(ctx, m.hookContext(mod), reason)
	})
	removed := m.registry.RemoveModule(mod.ID)
	if err != nil {
		m.publish(mod, StageUnload, PhaseError, Unloading, Unloading, err)
		m.log.Error().
			Err(err).
			Str("event", "module.unload_hook_failed").
			Str("module", mod.Name).
			Msg("unload hook failed, removing module anyway")
	}
	m.transition(mod, StageUnload, PhaseAfter, Unloaded, err)
	m.forget(mod)
	r.State, r.Err = Unloaded, err
	m.log.Info().
		Str("event", "module.unloaded").
		Str("module", mod.Name).
		Str("reason", reason).
		Int("removed_commands", len(removed)).
		Msg("module unloaded")
}

// UnloadAll unloads every tracked module.
func (m *Manager) UnloadAll(ctx context.Context, reason string) []Report {
	return m.UnloadModules(ctx, m.Modules(), reason)
}

// Reload unloads the module tracked under id, resolves its manifest again
// from scratch and takes the fresh module through start and load.
func (m *Manager) Reload(ctx context.Context, id string) (Report, error) {
	mod, ok := m.Get(id)
	if !ok {
		return Report{ID: id}, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	if m.resolver == nil {
		return Report{ID: id, Name: mod.Name}, errors.New("reload requires a resolver")
	}
	if st := mod.State(); st == Started || st == Loaded {
		if r := m.UnloadModules(ctx, []*Module{mod}, "reload")[0]; errors.Is(r.Err, ErrBusy) {
			return r, r.Err
		}
	} else {
		m.forget(mod)
	}
	return m.Install(ctx, mod.Path, mod.resolveOpts...)
}

// Install resolves path and takes the module through start and load.
func (m *Manager) Install(ctx context.Context, path string, opts ...ResolveOption) (Report, error) {
	if m.resolver == nil {
		return Report{}, errors.New("install requires a resolver")
	}
	fresh, err := m.resolver.Resolve(ctx, path, opts...)
	if err != nil {
		return Report{ID: IDForPath(path), Stage: StageStart, State: Unresolved, Err: err}, err
	}
	r := m.StartModules(ctx, []*Module{fresh})[0]
	if r.Err != nil {
		return r, r.Err
	}
	r = m.LoadModules(ctx, []*Module{fresh})[0]
	return r, r.Err
}

func (m *Manager) hookContext(mod *Module) *Context {
	return &Context{
		ID:       mod.ID,
		Name:     mod.Name,
		Path:     mod.Path,
		Settings: mod.Settings,
		Log:      m.log.With().Str("module", mod.Name).Logger(),
		Host:     m.host,
		module:   mod,
	}
}

// call runs a hook and turns errors and panics into a *HookError.
func (m *Manager) call(mod *Module, stage Stage, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &HookError{Module: mod.Name, Stage: stage, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	if err := fn(); err != nil {
		var he *HookError
		if errors.As(err, &he) {
			return err
		}
		return &HookError{Module: mod.Name, Stage: stage, Err: err}
	}
	return nil
}

func (m *Manager) transition(mod *Module, stage Stage, phase Phase, to State, err error) {
	from := mod.setState(to)
	m.publish(mod, stage, phase, from, to, err)
}

func (m *Manager) publish(mod *Module, stage Stage, phase Phase, from, to State, err error) {
	m.bus.Publish(events.TopicModuleStateChange, StateChange{
		ID:    mod.ID,
		Name:  mod.Name,
		Stage: stage,
		Phase: phase,
		From:  from,
		To:    to,
		Err:   err,
	})
}

func unlockAll(mods []*Module) {
	for _, mod := range mods {
		mod.op.Unlock()
	}
}
