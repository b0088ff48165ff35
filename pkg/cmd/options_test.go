package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sayDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	d, err := NewDescriptor(Descriptor{
		Kind:    KindMessage,
		Name:    "say",
		Execute: noop,
		Options: []Option{
			{Name: "count", Type: TypeInteger, Required: true},
			{Name: "text", Rest: true},
		},
		Flags: []Flag{
			{Name: "to", Multiple: true},
			{Name: "loud", Type: TypeBoolean},
			{Name: "channel", Required: true},
		},
	})
	require.NoError(t, err)
	return d
}

func TestResolve_PositionalAndRest(t *testing.T) {
	d := sayDescriptor(t)
	args := Resolve(context.Background(), d, Input{
		Args:  []string{"3", "hello", "there"},
		Flags: map[string][]string{"channel": {"general"}},
	})

	require.Len(t, args.Options, 2)
	assert.Equal(t, "count", args.Options[0].Name)
	assert.Equal(t, "hello there", args.String("text"))
	assert.Empty(t, args.Missing())
	assert.Empty(t, args.Invalid())

	v, err := args.Option("count").Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestResolve_RestPrefersSourceText(t *testing.T) {
	d := sayDescriptor(t)
	in := ParseInput(`3 don't  "panic" --channel general`, d.Flags)
	args := Resolve(context.Background(), d, in)

	assert.Equal(t, `don't  "panic"`, args.String("text"))
	assert.Equal(t, "general", args.String("channel"))
	assert.Empty(t, args.Missing())
}

func TestResolve_MissingNeverInvalid(t *testing.T) {
	d := sayDescriptor(t)
	args := Resolve(context.Background(), d, Input{})

	count := args.Option("count")
	assert.True(t, count.Missing)
	assert.False(t, count.Invalid)
	assert.Equal(t, []string{"count", "channel"}, args.Missing())
	assert.Empty(t, args.Invalid())

	// optional and absent: neither missing nor invalid
	text := args.Option("text")
	assert.False(t, text.Missing)
	assert.False(t, text.Invalid)
	v, err := text.Value(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestResolve_Invalid(t *testing.T) {
	d := sayDescriptor(t)
	args := Resolve(context.Background(), d, Input{
		Args:  []string{"three"},
		Flags: map[string][]string{"channel": {"general"}, "loud": {"maybe"}},
	})

	assert.Equal(t, []string{"count", "loud"}, args.Invalid())
	assert.Error(t, args.Option("count").Err)
	_, err := args.Option("count").Value(context.Background())
	assert.Error(t, err)
}

func TestResolve_CustomValidator(t *testing.T) {
	errNotUser := errors.New("unknown user")
	d, err := NewDescriptor(Descriptor{
		Kind: KindMessage, Name: "kick", Execute: noop,
		Options: []Option{{
			Name: "user", Type: TypeUser, Required: true,
			Validate: func(_ context.Context, raw string) error {
				if raw != "u1" {
					return errNotUser
				}
				return nil
			},
		}},
	})
	require.NoError(t, err)

	bad := Resolve(context.Background(), d, Input{Args: []string{"u2"}})
	assert.True(t, bad.Option("user").Invalid)
	assert.ErrorIs(t, bad.Option("user").Err, errNotUser)

	good := Resolve(context.Background(), d, Input{Args: []string{"u1"}})
	assert.False(t, good.Option("user").Invalid)
}

func TestResolve_LazyValue(t *testing.T) {
	calls := 0
	d, err := NewDescriptor(Descriptor{
		Kind: KindMessage, Name: "whois", Execute: noop,
		Options: []Option{{
			Name: "user", Type: TypeUser,
			Resolve: func(_ context.Context, raw string) (any, error) {
				calls++
				return "user:" + raw, nil
			},
		}},
	})
	require.NoError(t, err)

	args := Resolve(context.Background(), d, Input{Args: []string{"42"}})
	assert.Equal(t, 0, calls)
	assert.Equal(t, "42", args.Option("user").Raw)

	for i := 0; i < 2; i++ {
		v, err := args.Option("user").Value(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "user:42", v)
	}
	assert.Equal(t, 1, calls)
}

func TestResolve_MultipleFlags(t *testing.T) {
	d := sayDescriptor(t)
	args := Resolve(context.Background(), d, Input{
		Args:  []string{"1"},
		Flags: map[string][]string{"to": {"a", "b"}, "channel": {"x", "y"}, "loud": {"true"}},
	})

	to, err := args.Flag("to").Values(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, to)

	// single-valued flags keep the last occurrence
	assert.Equal(t, []string{"y"}, args.Flag("channel").Raw)
	loud, err := args.Flag("loud").Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, true, loud)
}

func TestResolve_NamedValuesWin(t *testing.T) {
	d, err := NewDescriptor(Descriptor{
		Kind: KindSlash, Name: "echo", Description: "Echo", Execute: noop,
		Options: []Option{{Name: "text", Required: true}},
	})
	require.NoError(t, err)

	args := Resolve(context.Background(), d, Input{Named: map[string][]string{"text": {"hi"}}})
	assert.Equal(t, "hi", args.String("text"))
	assert.Empty(t, args.Missing())
}

func TestResolve_Deterministic(t *testing.T) {
	d := sayDescriptor(t)
	in := Input{Args: []string{"x"}, Flags: map[string][]string{"loud": {"nope"}}}
	first := Resolve(context.Background(), d, in)
	for i := 0; i < 10; i++ {
		again := Resolve(context.Background(), d, in)
		assert.Equal(t, first.Missing(), again.Missing())
		assert.Equal(t, first.Invalid(), again.Invalid())
	}
}
