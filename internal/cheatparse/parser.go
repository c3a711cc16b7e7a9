// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package cheatparse splits cheat console text into a command word and
// its arguments. The grammar is deliberately small: a leading word,
// then any mix of integers, quoted strings and bare words. Callers fall
// back to treating the whole line as a phrase when parsing fails.
package cheatparse

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"
)

// cheatLexer tokenizes console input. Integers need their own token so
// "fund 5000" does not lex the amount as a word.
var cheatLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Word", Pattern: `[^\s"]+`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Line is a parsed cheat entry: the command word and its raw arguments.
type Line struct {
	Name string `parser:"@Word"`
	Args []*Arg `parser:"@@*"`
}

// Arg is one argument token. Exactly one field is set.
type Arg struct {
	Str  *string `parser:"  @String"`
	Int  *int64  `parser:"| @Int"`
	Word *string `parser:"| @Word"`
}

// Text returns the argument as a plain string, with string literals
// unquoted.
func (a *Arg) Text() string {
	switch {
	case a.Str != nil:
		return strings.Trim(*a.Str, `"`)
	case a.Int != nil:
		return fmt.Sprintf("%d", *a.Int)
	case a.Word != nil:
		return *a.Word
	default:
		return ""
	}
}

var parser *participle.Parser[Line]

func init() {
	var err error
	parser, err = participle.Build[Line](
		participle.Lexer(cheatLexer),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build cheat parser: %v", err))
	}
}

// Parse splits text into a lowercased command name and argument strings.
// Empty or whitespace-only input is an error.
func Parse(text string) (string, []string, error) {
	line, err := parser.ParseString("", text)
	if err != nil {
		return "", nil, oops.In("cheatparse").With("text", text).Wrap(err)
	}

	args := make([]string, 0, len(line.Args))
	for _, arg := range line.Args {
		args = append(args, arg.Text())
	}
	return strings.ToLower(line.Name), args, nil
}
