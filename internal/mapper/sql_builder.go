package mapper

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/sink"
	"github.com/Guizzs26/go-saksstatistikk/pkg/encoding"
)

var identifier = regexp.MustCompile(`^[A-Z][A-Z0-9_$]{0,30}$`)

// SQLBuilder translates sink schemas and projection rows into Firebird 2.5 statements
type SQLBuilder struct{}

func NewSQLBuilder() *SQLBuilder {
	return &SQLBuilder{}
}

func ident(name string) (string, error) {
	up := strings.ToUpper(name)
	if !identifier.MatchString(up) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return up, nil
}

// BuildCreateTable generates the DDL for schema. Firebird 2.5 has no BOOLEAN, so flags are SMALLINT
func (b *SQLBuilder) BuildCreateTable(schema sink.TableSchema) (string, error) {
	table, err := ident(schema.Name)
	if err != nil {
		return "", err
	}
	if len(schema.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}

	defs := make([]string, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		name, err := ident(c.Name)
		if err != nil {
			return "", err
		}
		var typ string
		switch c.Type {
		case sink.ColumnInt:
			typ = "BIGINT"
		case sink.ColumnText:
			typ = fmt.Sprintf("VARCHAR(%d)", c.MaxLen())
		case sink.ColumnTimestamp:
			typ = "TIMESTAMP"
		case sink.ColumnBool:
			typ = "SMALLINT"
		default:
			return "", fmt.Errorf("column %s.%s has unsupported type %q", table, name, c.Type)
		}
		def := name + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", ")), nil
}

// BuildInsert generates a standard INSERT statement for Firebird 2.5
func (b *SQLBuilder) BuildInsert(tableName string, data sink.Row) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("no data provided for insert on table %s", tableName)
	}
	table, err := ident(tableName)
	if err != nil {
		return "", nil, err
	}

	// Sort keys for deterministic SQL generation.
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	columns := make([]string, 0, len(keys))
	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		col, err := ident(k)
		if err != nil {
			return "", nil, err
		}
		columns = append(columns, col)
		placeholders = append(placeholders, "?")
		args = append(args, b.formatValue(data[k]))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args, nil
}

// BuildSelectAll reads every row of a table in column order
func (b *SQLBuilder) BuildSelectAll(schema sink.TableSchema) (string, error) {
	table, err := ident(schema.Name)
	if err != nil {
		return "", err
	}
	cols := make([]string, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		name, err := ident(c.Name)
		if err != nil {
			return "", err
		}
		cols = append(cols, name)
	}
	if len(cols) == 0 {
		return "SELECT * FROM " + table, nil
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), table), nil
}

// formatValue handles type conversion for Firebird 2.5 specificities
func (b *SQLBuilder) formatValue(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		// TIMESTAMP has no zone; the sink stores UTC
		return val.UTC().Format("2006-01-02 15:04:05")
	case string:
		return encoding.FitWIN1252(val)
	default:
		return val
	}
}
