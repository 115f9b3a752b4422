// Package token turns a raw command line into the small tagged token stream
// the launcher operates on: words and the four recognized operators.
package token

import (
	"fmt"
	"strings"
)

// Kind identifies what a Token represents.
type Kind int

const (
	// Word is a plain argument (a command name, flag, filename, ...).
	Word Kind = iota
	// Pipe separates pipeline stages ('|').
	Pipe
	// Input marks the next token as an input redirection target ('<').
	Input
	// Output marks the next token as an output redirection target ('>').
	Output
	// Background marks the line as a background job ('&'). Only valid as
	// the very last token.
	Background
)

// Token is one element of a tokenized command line.
type Token struct {
	Kind  Kind
	Value string
}

func (t Token) String() string {
	if t.Kind == Word {
		return t.Value
	}
	return t.Value
}

// Tokenize splits line on whitespace and classifies each field. There is no
// quoting or escaping: a field that is exactly "|", "<", ">" or "&" is an
// operator, everything else is a Word.
func Tokenize(line string) ([]Token, error) {
	fields := strings.Fields(line)
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "|":
			tokens = append(tokens, Token{Kind: Pipe, Value: f})
		case "<":
			tokens = append(tokens, Token{Kind: Input, Value: f})
		case ">":
			tokens = append(tokens, Token{Kind: Output, Value: f})
		case "&":
			tokens = append(tokens, Token{Kind: Background, Value: f})
		default:
			tokens = append(tokens, Token{Kind: Word, Value: f})
		}
	}
	return tokens, nil
}

// SplitStages strips a trailing Background token and splits the remaining
// tokens into pipeline stages at Pipe tokens. Every stage is validated: it
// must contain at least one Word, and every Input/Output operator must be
// immediately followed by a Word. Validation happens for every stage before
// any stage is returned, so a malformed stage three pipes in is reported
// without the caller ever having launched stage one or two.
func SplitStages(tokens []Token) (stages [][]Token, background bool, err error) {
	if len(tokens) > 0 && tokens[len(tokens)-1].Kind == Background {
		background = true
		tokens = tokens[:len(tokens)-1]
	}

	var current []Token
	for _, tk := range tokens {
		if tk.Kind == Pipe {
			if len(current) == 0 {
				return nil, false, fmt.Errorf("syntax error: empty command before '|'")
			}
			stages = append(stages, current)
			current = nil
			continue
		}
		current = append(current, tk)
	}
	if len(current) == 0 {
		if len(stages) == 0 {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("syntax error: empty command after '|'")
	}
	stages = append(stages, current)

	for _, s := range stages {
		if err := validateStage(s); err != nil {
			return nil, false, err
		}
	}
	return stages, background, nil
}

func validateStage(stage []Token) error {
	haveWord := false
	for i, tk := range stage {
		switch tk.Kind {
		case Word:
			haveWord = true
		case Input, Output:
			if i+1 >= len(stage) || stage[i+1].Kind != Word {
				return fmt.Errorf("syntax error: redirection operator without a filename")
			}
		case Background:
			return fmt.Errorf("syntax error: '&' is only valid at the end of the line")
		case Pipe:
			return fmt.Errorf("syntax error: unexpected '|'")
		}
	}
	if !haveWord {
		return fmt.Errorf("syntax error: empty command")
	}
	return nil
}
