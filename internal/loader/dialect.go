package loader

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect is the SQL flavor of a sink.
type Dialect int

const (
	Postgres Dialect = iota
	MySQL
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return "postgres"
	}
}

// ParseDialect maps a driver name to its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Postgres, fmt.Errorf("unsupported database driver %q", driver)
}

// MaxParams is the most bind parameters one statement may carry.
func (d Dialect) MaxParams() int {
	switch d {
	case SQLite:
		return 32766
	default:
		return 65535
	}
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Placeholder returns the n-th (1-based) bind placeholder.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// TruncateSQL returns the statement that empties table.
// SQLite has no TRUNCATE; an unqualified DELETE uses its truncate optimization.
func (d Dialect) TruncateSQL(table string) string {
	if d == SQLite {
		return "DELETE FROM " + d.Quote(table)
	}
	return "TRUNCATE TABLE " + d.Quote(table)
}

// BuildInsert returns a multi-row INSERT for rows rows, with the upsert
// clause when cfg.Upsert is set.
func BuildInsert(d Dialect, cfg Config, rows int) string {
	var b strings.Builder
	ncols := len(cfg.Columns)

	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(cfg.Table))
	b.WriteString(" (")
	for i, c := range cfg.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") VALUES ")

	p := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < ncols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(p))
			p++
		}
		b.WriteByte(')')
	}

	if cfg.Upsert {
		b.WriteString(upsertClause(d, cfg))
	}
	return b.String()
}

func upsertClause(d Dialect, cfg Config) string {
	set := make([]string, len(cfg.UpsertColumns))
	for i, c := range cfg.UpsertColumns {
		q := d.Quote(c)
		switch d {
		case MySQL:
			set[i] = q + " = VALUES(" + q + ")"
		case SQLite:
			set[i] = q + " = excluded." + q
		default:
			set[i] = q + " = EXCLUDED." + q
		}
	}

	if d == MySQL {
		return " ON DUPLICATE KEY UPDATE " + strings.Join(set, ", ")
	}

	keys := make([]string, len(cfg.ConflictColumns))
	for i, c := range cfg.ConflictColumns {
		keys[i] = d.Quote(c)
	}
	return " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(set, ", ")
}
