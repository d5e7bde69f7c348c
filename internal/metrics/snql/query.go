package snql

import (
	"fmt"
	"strings"
)

// Op is a comparison operator of a WHERE condition
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpIn
	OpNotIn
)

// String returns the SQL form of the operator
func (o Op) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	default:
		return "UNKNOWN"
	}
}

// Condition is a single WHERE predicate; conditions of a query are ANDed
type Condition struct {
	LHS Expression
	Op  Op
	RHS Expression
}

// NewCondition creates a condition
func NewCondition(lhs Expression, op Op, rhs Expression) Condition {
	return Condition{LHS: lhs, Op: op, RHS: rhs}
}

func (c Condition) writeSQL(sb *strings.Builder) error {
	if c.LHS == nil || c.RHS == nil {
		return fmt.Errorf("incomplete condition")
	}
	if c.Op.String() == "UNKNOWN" {
		return fmt.Errorf("unknown operator: %d", c.Op)
	}
	if err := c.LHS.writeSQL(sb); err != nil {
		return err
	}
	sb.WriteString(" ")
	sb.WriteString(c.Op.String())
	sb.WriteString(" ")
	return c.RHS.writeSQL(sb)
}

// Direction is the sort direction of an ORDER BY clause
type Direction int

const (
	Asc Direction = iota
	Desc
)

// String returns the SQL form of the direction
func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// ParseDirection parses "asc"/"desc" (any case); a leading "-" on a field
// name is handled by callers
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "", "ASC":
		return Asc, nil
	case "DESC":
		return Desc, nil
	default:
		return Asc, fmt.Errorf("invalid order direction: %q", s)
	}
}

// OrderBy sorts a query by an expression
type OrderBy struct {
	Expression Expression
	Direction  Direction
}

// NewOrderBy creates an ORDER BY entry
func NewOrderBy(expr Expression, direction Direction) OrderBy {
	return OrderBy{Expression: expr, Direction: direction}
}

// Query is a complete query against one entity of a dataset
type Query struct {
	Dataset     string
	Match       string
	Select      []Expression
	GroupBy     []Expression
	Where       []Condition
	OrderBy     []OrderBy
	Granularity int
	Limit       *int
}

// SQL renders the query. Rendering is deterministic, so the output can be
// used as a cache key.
func (q *Query) SQL() (string, error) {
	if q.Match == "" {
		return "", fmt.Errorf("query has no entity")
	}
	if !isValidIdentifier(q.Match) {
		return "", fmt.Errorf("invalid entity: %q", q.Match)
	}
	if len(q.Select) == 0 {
		return "", fmt.Errorf("query on %s selects nothing", q.Match)
	}

	var sb strings.Builder

	sb.WriteString("SELECT ")
	if err := writeList(&sb, q.Select); err != nil {
		return "", fmt.Errorf("failed to build select: %w", err)
	}

	sb.WriteString(" FROM ")
	sb.WriteString(q.Match)

	conditions := q.Where
	if q.Granularity > 0 {
		conditions = append(conditions[:len(conditions):len(conditions)],
			NewCondition(NewColumn("granularity"), OpEqual, Int(q.Granularity)))
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		for i, cond := range conditions {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			if err := cond.writeSQL(&sb); err != nil {
				return "", fmt.Errorf("failed to build condition: %w", err)
			}
		}
	}

	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		if err := writeList(&sb, q.GroupBy); err != nil {
			return "", fmt.Errorf("failed to build group by: %w", err)
		}
	}

	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, ob := range q.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			if ob.Expression == nil {
				return "", fmt.Errorf("failed to build order by: empty expression")
			}
			if err := ob.Expression.writeSQL(&sb); err != nil {
				return "", fmt.Errorf("failed to build order by: %w", err)
			}
			sb.WriteString(" ")
			sb.WriteString(ob.Direction.String())
		}
	}

	if q.Limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", *q.Limit))
	}

	return sb.String(), nil
}

func writeList(sb *strings.Builder, exprs []Expression) error {
	for i, expr := range exprs {
		if i > 0 {
			sb.WriteString(", ")
		}
		if expr == nil {
			return fmt.Errorf("nil expression at position %d", i)
		}
		if err := expr.writeSQL(sb); err != nil {
			return err
		}
	}
	return nil
}
