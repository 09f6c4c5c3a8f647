package sqlback

import (
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor and the engine name it registers under.
type Dialect string

const (
	// SQLite uses ? placeholders and has no native FLOOR, date_trunc or
	// ordered-set aggregates.
	SQLite Dialect = "sqlite"

	// Postgres uses $n placeholders.
	Postgres Dialect = "postgres"
)

func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) supportsTimeBucket() bool { return d == Postgres }
func (d Dialect) supportsQuantile() bool   { return d == Postgres }

// floor rounds v down. SQLite builds of go-sqlite3 do not ship the math
// functions, so it is spelled with integer casts there.
func (d Dialect) floor(v string) string {
	if d == Postgres {
		return "FLOOR(" + v + ")"
	}
	return "(CAST(" + v + " AS INTEGER) - (" + v + " < CAST(" + v + " AS INTEGER)))"
}

// floorRepeats is how many times floor writes its argument.
func (d Dialect) floorRepeats() int {
	if d == Postgres {
		return 1
	}
	return 3
}

// quoteIdent quotes a single identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteTable quotes a possibly schema-qualified relation name.
func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// numberLiteral renders a constant as a SQL floating point literal.
func numberLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
