// Package module turns manifests into modules and drives them through start,
// load and unload while keeping the command registry in step.
package module

import (
	"sync"

	"github.com/keshon/modkit/pkg/cmd"
)

// Module is a resolved module. After resolution it is owned by a Manager.
type Module struct {
	ID       string
	Name     string
	Path     string
	Versions []string
	Settings map[string]string
	Disabled bool

	onStart  StartFunc
	onLoad   LoadFunc
	onUnload UnloadFunc
	// resolution options, kept so Reload resolves the same way
	resolveOpts []ResolveOption

	op       sync.Mutex // held for the duration of one lifecycle operation
	mu       sync.Mutex
	state    State
	commands []*cmd.Descriptor
}

func (m *Module) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Module) setState(s State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state = s
	return prev
}

// Commands returns a copy of the module's command list.
func (m *Module) Commands() []*cmd.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*cmd.Descriptor(nil), m.commands...)
}

// Info is a read-only snapshot of a module.
type Info struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	State    string   `json:"state"`
	Versions []string `json:"versions,omitempty"`
	Commands []string `json:"commands"`
}

func (m *Module) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := Info{
		ID:       m.ID,
		Name:     m.Name,
		Path:     m.Path,
		State:    m.state.String(),
		Versions: m.Versions,
		Commands: make([]string, 0, len(m.commands)),
	}
	for _, d := range m.commands {
		in.Commands = append(in.Commands, d.Key().String())
	}
	return in
}
