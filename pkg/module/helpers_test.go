package module

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/keshon/modkit/pkg/cmd"
)

func noopExec(context.Context, *cmd.Invocation, *cmd.Args) error { return nil }

func message(name string) *cmd.Descriptor {
	return cmd.Message(name, name+" command").Execute(noopExec).MustBuild()
}

func writeManifest(t *testing.T, dir, file, body string) string {
	t.Helper()
	p := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// hooks counts hook calls and lets tests inject failures.
type hooks struct {
	starts, loads, unloads atomic.Int32
	startErr, loadErr      error
	unloadErr              error
	startOK                bool
	startPanic             bool
	lastReason             atomic.Value
}

func (h *hooks) definition(cmds ...*cmd.Descriptor) *Definition {
	return &Definition{
		Commands: cmds,
		OnStart: func(context.Context, *Context) (bool, error) {
			h.starts.Add(1)
			if h.startPanic {
				panic("boom")
			}
			return h.startOK, h.startErr
		},
		OnLoad: func(context.Context, *Context) error {
			h.loads.Add(1)
			return h.loadErr
		},
		OnUnload: func(_ context.Context, _ *Context, reason string) error {
			h.unloads.Add(1)
			h.lastReason.Store(reason)
			return h.unloadErr
		},
	}
}

func okHooks() *hooks { return &hooks{startOK: true} }

type stateRecorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *stateRecorder) Publish(_ string, payload any) {
	if sc, ok := payload.(StateChange); ok {
		r.mu.Lock()
		r.changes = append(r.changes, sc)
		r.mu.Unlock()
	}
}

func (r *stateRecorder) phases(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.changes {
		if c.ID == id {
			out = append(out, string(c.Stage)+"/"+string(c.Phase)+"/"+c.To.String())
		}
	}
	return out
}

// fixture resolves one manifest per named hooks set.
type fixture struct {
	t        *testing.T
	dir      string
	catalog  *Catalog
	resolver *Resolver
	registry *cmd.Registry
	events   *stateRecorder
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, dir: t.TempDir(), catalog: NewCatalog(), registry: cmd.NewRegistry(), events: &stateRecorder{}}
	r, err := NewResolver(f.catalog, "1.2.0", zerolog.Nop())
	require.NoError(t, err)
	f.resolver = r
	f.manager = NewManager(f.registry, r, WithPublisher(f.events))
	return f
}

func (f *fixture) add(name string, factory Factory) *Module {
	f.t.Helper()
	require.NoError(f.t, f.catalog.Register(name, factory))
	p := writeManifest(f.t, f.dir, name+".yaml", "name: "+name+"\n")
	mod, err := f.resolver.Resolve(context.Background(), p)
	require.NoError(f.t, err)
	return mod
}
