// Package cmd provides a transport-agnostic command core: typed command
// descriptors, a registry keyed by command kind, the option/flag resolver, the
// precondition and halt chains, and the execution pipeline that ties them
// together. How commands reach the platform (Discord slash, prefix messages,
// context menus) is defined by adapters that build Invocations.
package cmd

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind identifies one of the three command flavors.
type Kind int

const (
	KindContextMenu Kind = iota + 1
	KindMessage
	KindSlash
)

func (k Kind) String() string {
	switch k {
	case KindContextMenu:
		return "context_menu"
	case KindMessage:
		return "message"
	case KindSlash:
		return "slash"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k >= KindContextMenu && k <= KindSlash
}

// Application reports whether the kind is registered with the platform
// (slash and context-menu commands).
func (k Kind) Application() bool {
	return k == KindSlash || k == KindContextMenu
}

// ContextTarget selects what a context-menu command is attached to.
type ContextTarget string

const (
	TargetMessage ContextTarget = "message"
	TargetUser    ContextTarget = "user"
)

// ExecuteFunc runs a command once its arguments resolved and every
// precondition passed.
type ExecuteFunc func(ctx context.Context, inv *Invocation, args *Args) error

// Descriptor is the resolved, immutable description of a command. Build it
// with NewDescriptor (or the Builder) so it is validated; the registry and
// pipeline only operate on validated descriptors.
type Descriptor struct {
	Kind        Kind
	Name        string
	Description string
	Group       string
	Target      ContextTarget // context-menu only
	Options     []Option
	Flags       []Flag
	Cooldown    time.Duration
	GuildOnly   bool
	Guilds      []string // empty means global registration

	// Permission bitsets; the host decides what the bits mean.
	BotPermissions    int64
	CallerPermissions int64

	Execute ExecuteFunc
	Halt    HaltFunc

	// Module is the owning module id, stamped by the registry on Add.
	Module string
}

// Key identifies a descriptor inside a registry.
type Key struct {
	Kind Kind
	Name string
}

func (k Key) String() string { return k.Kind.String() + ":" + k.Name }

// Key returns the registry key of d.
func (d *Descriptor) Key() Key { return Key{Kind: d.Kind, Name: d.Name} }

var (
	slashNamePattern = regexp.MustCompile(`^[-_\p{L}\p{N}]{1,32}$`)
	menuNamePattern  = regexp.MustCompile(`^[-_ \p{L}\p{N}]{1,32}$`)
	flagNamePattern  = regexp.MustCompile(`^[a-z0-9][-a-z0-9_]{0,31}$`)
)

const maxDescriptionLen = 100

// ValidationError reports a descriptor field that failed validation.
type ValidationError struct {
	Command string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("invalid command: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid command %q: %s: %s", e.Command, e.Field, e.Reason)
}

// NewDescriptor validates d and returns a copy detached from the caller's
// slices, so later mutation of the input cannot leak into a registered command.
func NewDescriptor(d Descriptor) (*Descriptor, error) {
	if err := Validate(&d); err != nil {
		return nil, err
	}
	out := d
	out.Options = append([]Option(nil), d.Options...)
	out.Flags = append([]Flag(nil), d.Flags...)
	out.Guilds = append([]string(nil), d.Guilds...)
	if out.Kind == KindContextMenu && out.Target == "" {
		out.Target = TargetMessage
	}
	return &out, nil
}

// Validate checks the descriptor invariants: a known kind, a well-formed name,
// an execute function and unique option/flag names.
func Validate(d *Descriptor) error {
	fail := func(field, reason string) error {
		return &ValidationError{Command: d.Name, Field: field, Reason: reason}
	}

	if !d.Kind.Valid() {
		return fail("kind", "unknown command kind")
	}
	if d.Execute == nil {
		return fail("execute", "missing execute function")
	}
	if d.Cooldown < 0 {
		return fail("cooldown", "must not be negative")
	}

	switch d.Kind {
	case KindContextMenu:
		if !menuNamePattern.MatchString(d.Name) {
			return fail("name", "must be 1-32 letters, digits, spaces, '-' or '_'")
		}
		if len(d.Options) > 0 || len(d.Flags) > 0 {
			return fail("options", "context-menu commands take no options or flags")
		}
		if d.Target != "" && d.Target != TargetMessage && d.Target != TargetUser {
			return fail("target", fmt.Sprintf("unknown target %q", d.Target))
		}
	case KindSlash:
		if !slashNamePattern.MatchString(d.Name) || d.Name != strings.ToLower(d.Name) {
			return fail("name", "must be 1-32 lowercase letters, digits, '-' or '_'")
		}
		if d.Description == "" {
			return fail("description", "required for slash commands")
		}
		if len(d.Flags) > 0 {
			return fail("flags", "only message commands take flags")
		}
	case KindMessage:
		if !slashNamePattern.MatchString(d.Name) {
			return fail("name", "must be 1-32 letters, digits, '-' or '_'")
		}
	}
	if len(d.Description) > maxDescriptionLen {
		return fail("description", fmt.Sprintf("longer than %d characters", maxDescriptionLen))
	}

	seen := make(map[string]struct{}, len(d.Options)+len(d.Flags))
	optionalSeen := false
	for i, o := range d.Options {
		if !flagNamePattern.MatchString(o.Name) {
			return fail(fmt.Sprintf("options[%d].name", i), fmt.Sprintf("invalid option name %q", o.Name))
		}
		if _, dup := seen[o.Name]; dup {
			return fail(fmt.Sprintf("options[%d].name", i), fmt.Sprintf("duplicate name %q", o.Name))
		}
		seen[o.Name] = struct{}{}
		if o.Type != "" && !o.Type.valid() {
			return fail(fmt.Sprintf("options[%d].type", i), fmt.Sprintf("unknown type %q", o.Type))
		}
		if o.Rest && i != len(d.Options)-1 {
			return fail(fmt.Sprintf("options[%d].rest", i), "only the last option may consume the rest")
		}
		if o.Required && optionalSeen {
			return fail(fmt.Sprintf("options[%d].required", i), "required options must precede optional ones")
		}
		if !o.Required {
			optionalSeen = true
		}
	}
	for i, f := range d.Flags {
		if !flagNamePattern.MatchString(f.Name) {
			return fail(fmt.Sprintf("flags[%d].name", i), fmt.Sprintf("invalid flag name %q", f.Name))
		}
		if _, dup := seen[f.Name]; dup {
			return fail(fmt.Sprintf("flags[%d].name", i), fmt.Sprintf("duplicate name %q", f.Name))
		}
		seen[f.Name] = struct{}{}
		if f.Type != "" && !f.Type.valid() {
			return fail(fmt.Sprintf("flags[%d].type", i), fmt.Sprintf("unknown type %q", f.Type))
		}
	}
	return nil
}
