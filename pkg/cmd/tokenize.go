package cmd

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// token is one word of message input with its byte span in the source.
type token struct {
	text       string
	start, end int
}

// Tokenize splits text on whitespace, keeping "double" or 'single' quoted
// segments together. A quote only opens at the start of a word and only
// closes at the end of one; anything else, including an unterminated quote,
// is literal text.
func Tokenize(text string) []string {
	toks := scan(text)
	if len(toks) == 0 {
		return nil
	}
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.text
	}
	return out
}

func scan(text string) []token {
	var toks []token
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		start := i
		if r == '"' || r == '\'' {
			if end, ok := closingQuote(text, i+size, r); ok {
				toks = append(toks, token{text: text[i+size : end], start: start, end: end + size})
				i = end + size
				continue
			}
		}
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		toks = append(toks, token{text: text[start:i], start: start, end: i})
	}
	return toks
}

// closingQuote finds q at or after from that is followed by whitespace or the
// end of text.
func closingQuote(text string, from int, q rune) (int, bool) {
	for i := from; i < len(text); {
		j := strings.IndexRune(text[i:], q)
		if j < 0 {
			return 0, false
		}
		at := i + j
		next := at + utf8.RuneLen(q)
		if next == len(text) {
			return at, true
		}
		if r, _ := utf8.DecodeRuneInString(text[next:]); unicode.IsSpace(r) {
			return at, true
		}
		i = next
	}
	return 0, false
}

// ParseInput tokenizes the text following a message command's name and
// splits it into positional arguments and flags. A flag is written --name or
// --name=value; a declared non-boolean flag written without "=" takes the next
// token as its value. A bare "--" ends flag parsing.
func ParseInput(text string, flags []Flag) Input {
	declared := make(map[string]Flag, len(flags))
	for _, f := range flags {
		declared[f.Name] = f
	}

	in := Input{Flags: map[string][]string{}}
	tokens := scan(text)
	var positional []int
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i].text
		if tok == "--" && tokens[i].end-tokens[i].start == 2 {
			for j := i + 1; j < len(tokens); j++ {
				positional = append(positional, j)
			}
			break
		}
		if !strings.HasPrefix(tok, "--") || len(tok) == 2 {
			positional = append(positional, i)
			continue
		}

		name, value, hasValue := strings.Cut(tok[2:], "=")
		if !hasValue {
			f, known := declared[name]
			takesValue := known && f.Type != TypeBoolean
			if takesValue && i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1].text, "--") {
				value = tokens[i+1].text
				i++
			} else {
				value = "true"
			}
		}
		in.Flags[name] = append(in.Flags[name], value)
	}

	if len(positional) == 0 {
		return in
	}
	in.Args = make([]string, len(positional))
	in.Rest = make([]string, len(positional))
	for k := len(positional) - 1; k >= 0; k-- {
		t := tokens[positional[k]]
		in.Args[k] = t.text
		in.Rest[k] = text[t.start:t.end]
		if k+1 < len(positional) {
			sep := " "
			if positional[k+1] == positional[k]+1 {
				sep = text[t.end:tokens[positional[k+1]].start]
			}
			in.Rest[k] += sep + in.Rest[k+1]
		}
	}
	return in
}
