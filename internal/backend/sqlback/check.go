package sqlback

import (
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Check parses generated SQL with the PostgreSQL parser and verifies it is a
// single SELECT. SQLite placeholders are renumbered first; the rest of the
// SQLite output is syntax the PostgreSQL grammar accepts.
func Check(d Dialect, sql string) error {
	if d == SQLite {
		sql = numberPlaceholders(sql)
	}
	result, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("parse generated sql: %w", err)
	}
	if len(result.Stmts) != 1 {
		return fmt.Errorf("generated sql has %d statements, want 1", len(result.Stmts))
	}
	if _, ok := result.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt); !ok {
		return fmt.Errorf("generated sql is not a SELECT: %T", result.Stmts[0].Stmt.Node)
	}
	return nil
}

// numberPlaceholders rewrites ? placeholders to $1, $2, ... leaving quoted
// identifiers and string literals alone.
func numberPlaceholders(sql string) string {
	var sb strings.Builder
	var quote rune
	n := 0
	for _, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '?':
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
