package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, *Invocation, *Args) error { return nil }

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		d     Descriptor
		field string
	}{
		{
			name:  "unknown kind",
			d:     Descriptor{Name: "ping", Execute: noop},
			field: "kind",
		},
		{
			name:  "missing execute",
			d:     Descriptor{Kind: KindMessage, Name: "ping"},
			field: "execute",
		},
		{
			name:  "slash name with spaces",
			d:     Descriptor{Kind: KindSlash, Name: "my command", Description: "x", Execute: noop},
			field: "name",
		},
		{
			name:  "slash name uppercase",
			d:     Descriptor{Kind: KindSlash, Name: "Ping", Description: "x", Execute: noop},
			field: "name",
		},
		{
			name:  "slash without description",
			d:     Descriptor{Kind: KindSlash, Name: "ping", Execute: noop},
			field: "description",
		},
		{
			name:  "slash with flags",
			d:     Descriptor{Kind: KindSlash, Name: "ping", Description: "x", Flags: []Flag{{Name: "f"}}, Execute: noop},
			field: "flags",
		},
		{
			name:  "context menu with options",
			d:     Descriptor{Kind: KindContextMenu, Name: "Quote", Options: []Option{{Name: "a"}}, Execute: noop},
			field: "options",
		},
		{
			name: "duplicate option and flag",
			d: Descriptor{Kind: KindMessage, Name: "say", Execute: noop,
				Options: []Option{{Name: "text"}}, Flags: []Flag{{Name: "text"}}},
			field: "flags[0].name",
		},
		{
			name: "rest option not last",
			d: Descriptor{Kind: KindMessage, Name: "say", Execute: noop,
				Options: []Option{{Name: "a", Rest: true}, {Name: "b"}}},
			field: "options[0].rest",
		},
		{
			name: "required after optional",
			d: Descriptor{Kind: KindMessage, Name: "say", Execute: noop,
				Options: []Option{{Name: "a"}, {Name: "b", Required: true}}},
			field: "options[1].required",
		},
		{
			name: "unknown option type",
			d: Descriptor{Kind: KindMessage, Name: "say", Execute: noop,
				Options: []Option{{Name: "a", Type: "date"}}},
			field: "options[0].type",
		},
		{
			name:  "negative cooldown",
			d:     Descriptor{Kind: KindMessage, Name: "say", Execute: noop, Cooldown: -1},
			field: "cooldown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDescriptor(tt.d)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNewDescriptor_CopiesInput(t *testing.T) {
	opts := []Option{{Name: "text", Required: true}}
	d, err := NewDescriptor(Descriptor{Kind: KindMessage, Name: "say", Options: opts, Execute: noop})
	require.NoError(t, err)

	opts[0].Name = "changed"
	assert.Equal(t, "text", d.Options[0].Name)
}

func TestNewDescriptor_DefaultsContextTarget(t *testing.T) {
	d, err := NewDescriptor(Descriptor{Kind: KindContextMenu, Name: "Quote message", Execute: noop})
	require.NoError(t, err)
	assert.Equal(t, TargetMessage, d.Target)
}

func TestBuilder(t *testing.T) {
	d, err := Message("say", "Repeat text").
		Group("fun").
		Option(Option{Name: "text", Required: true, Rest: true}).
		Flag(Flag{Name: "loud", Type: TypeBoolean}).
		CallerPermissions(1).
		CallerPermissions(4).
		Execute(noop).
		Build()
	require.NoError(t, err)

	assert.Equal(t, KindMessage, d.Kind)
	assert.Equal(t, "fun", d.Group)
	assert.Equal(t, int64(5), d.CallerPermissions)
	assert.Len(t, d.Options, 1)
	assert.Len(t, d.Flags, 1)

	assert.Panics(t, func() { Slash("Bad Name", "x").Execute(noop).MustBuild() })
}

func TestKind(t *testing.T) {
	assert.Equal(t, "slash", KindSlash.String())
	assert.True(t, KindContextMenu.Application())
	assert.False(t, KindMessage.Application())
	assert.False(t, Kind(0).Valid())
	assert.Equal(t, "message:ping", Key{Kind: KindMessage, Name: "ping"}.String())
}
