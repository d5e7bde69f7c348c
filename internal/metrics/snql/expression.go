// Package snql provides the expression tree metrics queries are built from and
// renders it as ClickHouse SQL
package snql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expression is a node of a query expression tree
type Expression interface {
	// writeSQL appends the SQL rendering of the expression to sb
	writeSQL(sb *strings.Builder) error
}

// Aliased is implemented by expressions that carry an output alias
type Aliased interface {
	Expression
	AliasName() string
}

// Column references a column of the queried entity
type Column struct {
	Name string
}

// NewColumn creates a column reference
func NewColumn(name string) Column {
	return Column{Name: name}
}

func (c Column) writeSQL(sb *strings.Builder) error {
	if !isValidIdentifier(c.Name) {
		return fmt.Errorf("invalid column name: %q", c.Name)
	}
	sb.WriteString(c.Name)
	return nil
}

// Function is a function call, optionally aliased.
// Parametric aggregates keep their parameters in the name, e.g.
// "quantilesIf(0.95)", and render as quantilesIf(0.95)(args...).
type Function struct {
	Name   string
	Params []Expression
	Alias  string
}

// NewFunction creates an unaliased function call
func NewFunction(name string, params ...Expression) Function {
	return Function{Name: name, Params: params}
}

// NewAliasedFunction creates a function call with an output alias
func NewAliasedFunction(name string, alias string, params ...Expression) Function {
	return Function{Name: name, Params: params, Alias: alias}
}

// AliasName returns the alias of the function call
func (f Function) AliasName() string {
	return f.Alias
}

// WithAlias returns a copy of the function with a different alias
func (f Function) WithAlias(alias string) Function {
	f.Alias = alias
	return f
}

func (f Function) writeSQL(sb *strings.Builder) error {
	if !isValidFunctionName(f.Name) {
		return fmt.Errorf("invalid function name: %q", f.Name)
	}
	if f.Alias != "" {
		sb.WriteString("(")
	}
	sb.WriteString(f.Name)
	sb.WriteString("(")
	for i, param := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if param == nil {
			return fmt.Errorf("function %s: nil parameter at position %d", f.Name, i)
		}
		if err := param.writeSQL(sb); err != nil {
			return err
		}
	}
	sb.WriteString(")")
	if f.Alias != "" {
		sb.WriteString(" AS ")
		sb.WriteString(quoteAlias(f.Alias))
		sb.WriteString(")")
	}
	return nil
}

// Int is an integer literal
type Int int64

func (i Int) writeSQL(sb *strings.Builder) error {
	sb.WriteString(strconv.FormatInt(int64(i), 10))
	return nil
}

// Float is a floating point literal
type Float float64

func (f Float) writeSQL(sb *strings.Builder) error {
	sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 64))
	return nil
}

// String is a string literal
type String string

func (s String) writeSQL(sb *strings.Builder) error {
	sb.WriteString("'")
	sb.WriteString(escapeString(string(s)))
	sb.WriteString("'")
	return nil
}

// IntList is a list of integers, rendered as a tuple for use with IN
type IntList []int64

func (l IntList) writeSQL(sb *strings.Builder) error {
	sb.WriteString("tuple(")
	for i, v := range l {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	sb.WriteString(")")
	return nil
}

// Time is a timestamp literal, rendered in UTC
type Time time.Time

func (t Time) writeSQL(sb *strings.Builder) error {
	sb.WriteString("toDateTime('")
	sb.WriteString(time.Time(t).UTC().Format("2006-01-02 15:04:05"))
	sb.WriteString("', 'UTC')")
	return nil
}

// Render returns the SQL rendering of a single expression
func Render(expr Expression) (string, error) {
	var sb strings.Builder
	if err := expr.writeSQL(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// quoteAlias quotes an alias so that any metric name can be used in it
func quoteAlias(alias string) string {
	return "`" + strings.NewReplacer("\\", "\\\\", "`", "\\`").Replace(alias) + "`"
}

func escapeString(s string) string {
	return strings.NewReplacer("\\", "\\\\", "'", "\\'").Replace(s)
}

// isValidIdentifier checks that a column only contains letters, digits,
// underscores and dots (for nested columns such as tags.key)
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, char := range s {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_' || char == '.') {
			return false
		}
	}
	return true
}

// isValidFunctionName accepts plain identifiers and parametric aggregates
// such as quantilesIf(0.95)
func isValidFunctionName(s string) bool {
	name := s
	if idx := strings.IndexByte(s, '('); idx >= 0 {
		if !strings.HasSuffix(s, ")") {
			return false
		}
		name = s[:idx]
		for _, param := range strings.Split(s[idx+1:len(s)-1], ",") {
			if _, err := strconv.ParseFloat(strings.TrimSpace(param), 64); err != nil {
				return false
			}
		}
	}
	return name != "" && !strings.Contains(name, ".") && isValidIdentifier(name)
}
