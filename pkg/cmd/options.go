package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// OptionType names the value type of an option or flag. Platform-specific
// types (user, channel, role) carry no built-in validation; plug a Validate
// and Resolve pair in for them.
type OptionType string

const (
	TypeString      OptionType = "string"
	TypeInteger     OptionType = "integer"
	TypeNumber      OptionType = "number"
	TypeBoolean     OptionType = "boolean"
	TypeUser        OptionType = "user"
	TypeChannel     OptionType = "channel"
	TypeRole        OptionType = "role"
	TypeMentionable OptionType = "mentionable"
)

func (t OptionType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeUser, TypeChannel, TypeRole, TypeMentionable:
		return true
	}
	return false
}

// ValidateFunc checks a raw value. A nil return means valid; any error marks
// the value invalid and is attached to it.
type ValidateFunc func(ctx context.Context, raw string) error

// ResolveFunc converts a raw value into its typed form. It only runs when the
// command asks for the value.
type ResolveFunc func(ctx context.Context, raw string) (any, error)

// Option is a positional argument of a message command, or a named option of
// a slash command.
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Rest        bool // consume every remaining token, joined by spaces
	Validate    ValidateFunc
	Resolve     ResolveFunc
}

// Flag is a named message-command argument given as --name or --name=value.
type Flag struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Multiple    bool
	Validate    ValidateFunc
	Resolve     ResolveFunc
}

// Input is the raw, tokenized invocation input the resolver works on.
type Input struct {
	Args  []string            // positional tokens
	Named map[string][]string // option values supplied by name (structured interactions)
	Flags map[string][]string
	// Rest[i] is the source text from Args[i] onwards, verbatim apart from
	// removed flags. Rest options read it when set.
	Rest []string
}

var errNotBoolean = errors.New("expected true or false")

func builtinValidate(t OptionType, raw string) error {
	switch t {
	case TypeInteger:
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return fmt.Errorf("%q is not an integer", raw)
		}
	case TypeNumber:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("%q is not a number", raw)
		}
	case TypeBoolean:
		if _, err := parseBool(raw); err != nil {
			return err
		}
	}
	return nil
}

func builtinResolve(t OptionType, raw string) (any, error) {
	switch t {
	case TypeInteger:
		return strconv.ParseInt(raw, 10, 64)
	case TypeNumber:
		return strconv.ParseFloat(raw, 64)
	case TypeBoolean:
		return parseBool(raw)
	default:
		return raw, nil
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, errNotBoolean
}

func runValidate(ctx context.Context, t OptionType, fn ValidateFunc, raw string) error {
	if err := builtinValidate(t, raw); err != nil {
		return err
	}
	if fn != nil {
		return fn(ctx, raw)
	}
	return nil
}

// lazyValue memoizes a single ResolveFunc call.
type lazyValue struct {
	once  sync.Once
	value any
	err   error
}

func (l *lazyValue) get(ctx context.Context, t OptionType, fn ResolveFunc, raw string) (any, error) {
	l.once.Do(func() {
		if fn != nil {
			l.value, l.err = fn(ctx, raw)
			return
		}
		l.value, l.err = builtinResolve(t, raw)
	})
	return l.value, l.err
}

// OptionValue is the per-invocation state of one declared option.
type OptionValue struct {
	Name    string
	Raw     string
	Present bool
	Missing bool
	Invalid bool
	Err     error

	opt  Option
	lazy lazyValue
}

// Value resolves the typed value on first call and caches it. An absent
// option resolves to nil.
func (v *OptionValue) Value(ctx context.Context) (any, error) {
	if !v.Present {
		return nil, nil
	}
	if v.Invalid {
		return nil, v.Err
	}
	return v.lazy.get(ctx, v.opt.Type, v.opt.Resolve, v.Raw)
}

// FlagValue is the per-invocation state of one declared flag.
type FlagValue struct {
	Name     string
	Raw      []string
	Multiple bool
	Present  bool
	Missing  bool
	Invalid  bool
	Err      error

	flag Flag
	lazy []lazyValue
}

// Value returns the typed value of a single-valued flag (the last one given).
func (v *FlagValue) Value(ctx context.Context) (any, error) {
	if !v.Present {
		return nil, nil
	}
	if v.Invalid {
		return nil, v.Err
	}
	i := len(v.Raw) - 1
	return v.lazy[i].get(ctx, v.flag.Type, v.flag.Resolve, v.Raw[i])
}

// Values returns every typed value of the flag in input order.
func (v *FlagValue) Values(ctx context.Context) ([]any, error) {
	if !v.Present {
		return nil, nil
	}
	if v.Invalid {
		return nil, v.Err
	}
	out := make([]any, 0, len(v.Raw))
	for i := range v.Raw {
		val, err := v.lazy[i].get(ctx, v.flag.Type, v.flag.Resolve, v.Raw[i])
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", v.Name, err)
		}
		out = append(out, val)
	}
	return out, nil
}

// Args holds the resolved options (in declaration order) and flags of one
// invocation.
type Args struct {
	Options []*OptionValue
	Flags   []*FlagValue
}

// Option returns the named option, or nil when the command declares none.
func (a *Args) Option(name string) *OptionValue {
	if a == nil {
		return nil
	}
	for _, o := range a.Options {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Flag returns the named flag, or nil when the command declares none.
func (a *Args) Flag(name string) *FlagValue {
	if a == nil {
		return nil
	}
	for _, f := range a.Flags {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// String returns the raw value of an option or flag, or "" when absent.
func (a *Args) String(name string) string {
	if o := a.Option(name); o != nil {
		return o.Raw
	}
	if f := a.Flag(name); f != nil && f.Present {
		return f.Raw[len(f.Raw)-1]
	}
	return ""
}

// Missing lists the names of missing options, then missing flags.
func (a *Args) Missing() []string {
	var out []string
	for _, o := range a.Options {
		if o.Missing {
			out = append(out, o.Name)
		}
	}
	for _, f := range a.Flags {
		if f.Missing {
			out = append(out, f.Name)
		}
	}
	return out
}

// Invalid lists the names of invalid options, then invalid flags.
func (a *Args) Invalid() []string {
	var out []string
	for _, o := range a.Options {
		if o.Invalid {
			out = append(out, o.Name)
		}
	}
	for _, f := range a.Flags {
		if f.Invalid {
			out = append(out, f.Name)
		}
	}
	return out
}

// Resolve produces one OptionValue per declared option and one FlagValue per
// declared flag. Validation only runs on values that are present, so a value
// is never both missing and invalid. Typed resolution is deferred to Value.
func Resolve(ctx context.Context, d *Descriptor, in Input) *Args {
	args := &Args{
		Options: make([]*OptionValue, 0, len(d.Options)),
		Flags:   make([]*FlagValue, 0, len(d.Flags)),
	}

	pos := 0
	for _, o := range d.Options {
		v := &OptionValue{Name: o.Name, opt: o}
		if named, ok := in.Named[o.Name]; ok && len(named) > 0 {
			v.Raw, v.Present = named[0], true
		} else if pos < len(in.Args) {
			if o.Rest {
				if pos < len(in.Rest) {
					v.Raw = in.Rest[pos]
				} else {
					v.Raw = strings.Join(in.Args[pos:], " ")
				}
				pos = len(in.Args)
			} else {
				v.Raw = in.Args[pos]
				pos++
			}
			v.Present = true
		}

		if !v.Present {
			v.Missing = o.Required
		} else if err := runValidate(ctx, o.Type, o.Validate, v.Raw); err != nil {
			v.Invalid, v.Err = true, err
		}
		args.Options = append(args.Options, v)
	}

	for _, f := range d.Flags {
		raw := in.Flags[f.Name]
		v := &FlagValue{Name: f.Name, Multiple: f.Multiple, flag: f}
		if len(raw) > 0 {
			if !f.Multiple {
				raw = raw[len(raw)-1:]
			}
			v.Raw = append([]string(nil), raw...)
			v.Present = true
			v.lazy = make([]lazyValue, len(v.Raw))
		}

		if !v.Present {
			v.Missing = f.Required
		} else {
			for _, r := range v.Raw {
				if err := runValidate(ctx, f.Type, f.Validate, r); err != nil {
					v.Invalid, v.Err = true, err
					break
				}
			}
		}
		args.Flags = append(args.Flags, v)
	}

	return args
}
