package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/mapper"
	"github.com/Guizzs26/go-saksstatistikk/internal/sink"
	"github.com/Guizzs26/go-saksstatistikk/pkg/encoding"

	_ "github.com/nakagami/firebirdsql"
)

// FirebirdSink is the analytical store. Rows are only ever appended; idempotency is enforced by the
// receipts kept in Postgres, not here
type FirebirdSink struct {
	db      *sql.DB
	builder *mapper.SQLBuilder
	logger  *slog.Logger

	mu      sync.Mutex
	schemas map[string]sink.TableSchema
}

var _ sink.Sink = (*FirebirdSink)(nil)

// NewFirebirdSink initializes a connection pool for Firebird 2.5. connString should carry
// charset=WIN1252 so text columns match what the mapper produces
func NewFirebirdSink(connString string, logger *slog.Logger) (*FirebirdSink, error) {
	db, err := sql.Open("firebirdsql", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open firebird connection: %w", err)
	}

	// Connection pool settings optimized for legacy systems
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("firebird ping failed: %w", err)
	}

	logger.Info("Connected to Firebird sink successfully", "dialect", 3)

	return &FirebirdSink{
		db:      db,
		builder: mapper.NewSQLBuilder(),
		logger:  logger,
		schemas: map[string]sink.TableSchema{},
	}, nil
}

func (f *FirebirdSink) CreateTableIfAbsent(ctx context.Context, schema sink.TableSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.schemas[schema.Name]; ok {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var n int
	err := f.db.QueryRowContext(opCtx,
		`SELECT COUNT(*) FROM RDB$RELATIONS WHERE TRIM(RDB$RELATION_NAME) = ?`,
		strings.ToUpper(schema.Name),
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to look up table %s: %w", schema.Name, err)
	}

	if n == 0 {
		ddl, err := f.builder.BuildCreateTable(schema)
		if err != nil {
			return err
		}
		if _, err := f.db.ExecContext(opCtx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", schema.Name, err)
		}
		f.logger.Info("Created sink table", "table", schema.Name)
	}

	f.schemas[schema.Name] = schema
	return nil
}

func (f *FirebirdSink) schema(table string) (sink.TableSchema, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schemas[table]
	return s, ok
}

func (f *FirebirdSink) InsertRow(ctx context.Context, table string, row sink.Row) error {
	if schema, ok := f.schema(table); ok {
		if err := schema.Check(row); err != nil {
			return err
		}
	}

	query, args, err := f.builder.BuildInsert(table, row)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := f.db.ExecContext(opCtx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// ReadAll returns every row of table. Text comes back decoded from WIN1252
func (f *FirebirdSink) ReadAll(ctx context.Context, table string) ([]sink.Row, error) {
	schema, ok := f.schema(table)
	if !ok {
		schema = sink.TableSchema{Name: table}
	}
	query, err := f.builder.BuildSelectAll(schema)
	if err != nil {
		return nil, err
	}

	rows, err := f.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []sink.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		row := make(sink.Row, len(cols))
		for i, c := range cols {
			name := strings.TrimSpace(c)
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = encoding.ToUTF8(b)
			}
			if col, ok := schema.Column(name); ok && col.Type == sink.ColumnBool && v != nil {
				v = fmt.Sprint(v) == "1"
			}
			row[name] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close gracefully shuts down the database connection pool
func (f *FirebirdSink) Close() error {
	f.logger.Info("Closing Firebird connection pool")
	return f.db.Close()
}
