// Package sink describes the analytical store that committed state is replicated into. The sink is
// append-only and is only written by sync job handlers.
package sink

import (
	"context"
	"unicode/utf8"

	"github.com/Guizzs26/go-saksstatistikk/internal/models"
)

type ColumnType string

const (
	ColumnInt       ColumnType = "INT"
	ColumnText      ColumnType = "TEXT"
	ColumnTimestamp ColumnType = "TIMESTAMP"
	ColumnBool      ColumnType = "BOOL"
)

type Column struct {
	Name     string
	Type     ColumnType
	Size     int // text only
	Nullable bool
}

// DefaultTextSize is the VARCHAR length of a text column declared without Size
const DefaultTextSize = 255

// MaxLen is the longest text value, in characters, the column stores
func (c Column) MaxLen() int {
	if c.Size <= 0 {
		return DefaultTextSize
	}
	return c.Size
}

type TableSchema struct {
	Name    string
	Columns []Column
}

// Column looks up a column by name
func (s TableSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Check reports the first way row does not fit the schema as a ValidationError. A row that fails
// here fails the same way on every attempt
func (s TableSchema) Check(row Row) error {
	for name := range row {
		if _, ok := s.Column(name); !ok {
			return models.NewValidationError(s.Name+"."+name, "is not part of the table")
		}
	}
	for _, c := range s.Columns {
		v, ok := row[c.Name]
		if (!ok || v == nil) && !c.Nullable {
			return models.NewValidationError(s.Name+"."+c.Name, "must not be null")
		}
		if text, isText := v.(string); isText && c.Type == ColumnText {
			if n := utf8.RuneCountInString(text); n > c.MaxLen() {
				return models.NewValidationError(s.Name+"."+c.Name, "is %d characters, column holds %d", n, c.MaxLen())
			}
		}
	}
	return nil
}

// Row is one projection record keyed by column name
type Row map[string]any

func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type Sink interface {
	CreateTableIfAbsent(ctx context.Context, schema TableSchema) error
	InsertRow(ctx context.Context, table string, row Row) error
	ReadAll(ctx context.Context, table string) ([]Row, error)
}
