package notebook

import (
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

const (
	openDelimiter  = "{{"
	closeDelimiter = "}}"
)

// renderer evaluates {{ expression }} placeholders. Expressions may use any
// expr-lang syntax, including pipes such as {{ title | upper() }}. Unknown
// variables render as an empty string.
type renderer struct {
	programs map[string]*exprvm.Program
}

func newRenderer() *renderer {
	return &renderer{programs: map[string]*exprvm.Program{}}
}

func (r *renderer) render(text string, vars map[string]any) (string, error) {
	var builder strings.Builder
	rest := text
	for {
		start := strings.Index(rest, openDelimiter)
		if start < 0 {
			builder.WriteString(rest)
			return builder.String(), nil
		}
		end := strings.Index(rest[start+len(openDelimiter):], closeDelimiter)
		if end < 0 {
			builder.WriteString(rest)
			return builder.String(), nil
		}
		end += start + len(openDelimiter)
		builder.WriteString(rest[:start])

		expression := strings.TrimSpace(rest[start+len(openDelimiter) : end])
		value, err := r.evaluate(expression, vars)
		if err != nil {
			return "", err
		}
		builder.WriteString(value)
		rest = rest[end+len(closeDelimiter):]
	}
}

func (r *renderer) evaluate(expression string, vars map[string]any) (string, error) {
	if expression == "" {
		return "", fmt.Errorf("empty template expression")
	}
	program, ok := r.programs[expression]
	if !ok {
		compiled, err := exprlang.Compile(expression,
			exprlang.Env(map[string]any{}),
			exprlang.AllowUndefinedVariables(),
		)
		if err != nil {
			return "", fmt.Errorf("compile template expression %q: %w", expression, err)
		}
		program = compiled
		r.programs[expression] = program
	}
	result, err := exprlang.Run(program, vars)
	if err != nil {
		return "", fmt.Errorf("evaluate template expression %q: %w", expression, err)
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}
