package cmd

import (
	"fmt"
	"sort"
	"sync"
)

// ConflictError is returned by Registry.Add when another module already owns
// the name within the same kind.
type ConflictError struct {
	Key   Key
	Owner string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("command %s already registered by module %s", e.Key, e.Owner)
}

type entry struct {
	d    *Descriptor
	live bool
}

// Registry stores descriptors by kind and name. A command is "live" once its
// module finished loading; only live commands are dispatched or synced.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*entry)}
}

// Add registers d on behalf of module. An existing entry with the same key is
// never overwritten.
func (r *Registry) Add(module string, d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := d.Key()
	if e, ok := r.entries[k]; ok {
		return &ConflictError{Key: k, Owner: e.d.Module}
	}
	owned := *d
	owned.Module = module
	r.entries[k] = &entry{d: &owned}
	return nil
}

// RemoveModule drops every command owned by module and returns their keys.
func (r *Registry) RemoveModule(module string) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Key
	for k, e := range r.entries {
		if e.d.Module == module {
			delete(r.entries, k)
			removed = append(removed, k)
		}
	}
	sortKeys(removed)
	return removed
}

// SetLive flips the live flag of every command owned by module.
func (r *Registry) SetLive(module string, live bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.d.Module == module {
			e.live = live
			n++
		}
	}
	return n
}

// Get returns a registered command whether or not it is live.
func (r *Registry) Get(kind Kind, name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Key{Kind: kind, Name: name}]
	if !ok {
		return nil, false
	}
	return e.d, true
}

// Lookup returns a command only if it is live.
func (r *Registry) Lookup(kind Kind, name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Key{Kind: kind, Name: name}]
	if !ok || !e.live {
		return nil, false
	}
	return e.d, true
}

// IsLive reports whether the command is registered and live.
func (r *Registry) IsLive(kind Kind, name string) bool {
	_, ok := r.Lookup(kind, name)
	return ok
}

// All returns every registered command sorted by kind, then name.
func (r *Registry) All() []*Descriptor {
	return r.collect(func(*entry) bool { return true })
}

// Live returns live commands sorted by kind, then name.
func (r *Registry) Live() []*Descriptor {
	return r.collect(func(e *entry) bool { return e.live })
}

// Owned returns the keys registered by module.
func (r *Registry) Owned(module string) []Key {
	var keys []Key
	for _, d := range r.collect(func(e *entry) bool { return e.d.Module == module }) {
		keys = append(keys, d.Key())
	}
	return keys
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) collect(keep func(*entry) bool) []*Descriptor {
	r.mu.RLock()
	list := make([]*Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		if keep(e) {
			list = append(list, e.d)
		}
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Kind != list[j].Kind {
			return list[i].Kind < list[j].Kind
		}
		return list[i].Name < list[j].Name
	})
	return list
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Name < keys[j].Name
	})
}
