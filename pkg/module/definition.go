package module

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/modkit/pkg/cmd"
)

// StartFunc prepares a module. Returning false or an error aborts the start.
type StartFunc func(ctx context.Context, mc *Context) (bool, error)

// LoadFunc runs once the module's commands are registered and before they go live.
type LoadFunc func(ctx context.Context, mc *Context) error

// UnloadFunc releases whatever the module acquired. The reason is free text
// such as "shutdown" or "reload".
type UnloadFunc func(ctx context.Context, mc *Context, reason string) error

// Definition is what module code contributes. A Factory returns a fresh one
// for every resolution so reloads never share state.
type Definition struct {
	Versions []string
	Commands []*cmd.Descriptor
	OnStart  StartFunc
	OnLoad   LoadFunc
	OnUnload UnloadFunc
}

// Factory builds a Definition.
type Factory func() *Definition

var (
	ErrDuplicateModule = errors.New("module already registered")
	ErrFrozen          = errors.New("module commands are frozen once started")
)

// Catalog maps manifest names to module factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Default is the catalog built-in modules register into from init().
var Default = NewCatalog()

// Register adds a factory under name.
func (c *Catalog) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register module %q: name and factory are required", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	c.factories[name] = f
	return nil
}

// MustRegister is Register for init() use.
func (c *Catalog) MustRegister(name string, f Factory) {
	if err := c.Register(name, f); err != nil {
		panic(err)
	}
}

func (c *Catalog) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for n := range c.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Register adds a factory to the Default catalog and panics on duplicates.
func Register(name string, f Factory) { Default.MustRegister(name, f) }

// Context is handed to every lifecycle hook.
type Context struct {
	ID       string
	Name     string
	Path     string
	Settings map[string]string
	Log      zerolog.Logger
	// Host is whatever the embedding application passed to WithHost, such as
	// a platform session.
	Host any

	module *Module
}

// AddCommand appends a command to the module. It is only allowed from OnStart;
// afterwards the command set is frozen.
func (c *Context) AddCommand(d *cmd.Descriptor) error {
	if d == nil {
		return errors.New("nil command")
	}
	d, err := cmd.NewDescriptor(*d)
	if err != nil {
		return err
	}
	m := c.module
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Starting {
		return ErrFrozen
	}
	for _, have := range m.commands {
		if have.Key() == d.Key() {
			return fmt.Errorf("duplicate command %s in module %s", d.Key(), m.Name)
		}
	}
	m.commands = append(m.commands, d)
	return nil
}

// Commands returns the module's current command set.
func (c *Context) Commands() []*cmd.Descriptor { return c.module.Commands() }
