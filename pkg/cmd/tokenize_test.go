package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  a  b ", []string{"a", "b"}},
		{`say "hello world" 'x y'`, []string{"say", "hello world", "x y"}},
		{`empty ""`, []string{"empty", ""}},
		{"don't worry, it's fine", []string{"don't", "worry,", "it's", "fine"}},
		{`say "unterminated quote`, []string{"say", `"unterminated`, "quote"}},
		{`'tis fine, isn't it`, []string{"'tis", "fine,", "isn't", "it"}},
		{`a "b c"d e"`, []string{"a", `b c"d e`}},
		{`mid"dle 'x'`, []string{`mid"dle`, "x"}},
		{"tabs\tand\nlines", []string{"tabs", "and", "lines"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Tokenize(tt.in), tt.in)
	}
}

func TestParseInput(t *testing.T) {
	flags := []Flag{
		{Name: "to"},
		{Name: "loud", Type: TypeBoolean},
	}
	in := ParseInput(`hi --loud --to bob --to=ann --unknown there -- --raw`, flags)

	assert.Equal(t, []string{"hi", "there", "--raw"}, in.Args)
	assert.Equal(t, []string{"true"}, in.Flags["loud"])
	assert.Equal(t, []string{"bob", "ann"}, in.Flags["to"])
	assert.Equal(t, []string{"true"}, in.Flags["unknown"])
}

func TestParseInput_RestKeepsSourceText(t *testing.T) {
	in := ParseInput(`it's   "quoted" text --loud done`, []Flag{{Name: "loud", Type: TypeBoolean}})

	assert.Equal(t, []string{"it's", "quoted", "text", "done"}, in.Args)
	assert.Equal(t, []string{
		`it's   "quoted" text done`,
		`"quoted" text done`,
		"text done",
		"done",
	}, in.Rest)
	assert.Equal(t, []string{"true"}, in.Flags["loud"])
}

func TestParseInput_Empty(t *testing.T) {
	in := ParseInput("   ", nil)
	assert.Nil(t, in.Args)
	assert.Nil(t, in.Rest)
}
