package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Sink. It enforces table existence and schema fit like a real store
type Memory struct {
	mu       sync.Mutex
	tables   map[string]*memTable
	failNext error
	inserts  int
}

type memTable struct {
	schema TableSchema
	rows   []Row
}

var _ Sink = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{tables: map[string]*memTable{}}
}

// FailNext makes the next InsertRow return err
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) CreateTableIfAbsent(ctx context.Context, schema TableSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[schema.Name]; !ok {
		m.tables[schema.Name] = &memTable{schema: schema}
	}
	return nil
}

func (m *Memory) InsertRow(ctx context.Context, table string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	t, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("table %s does not exist", table)
	}
	if err := t.schema.Check(row); err != nil {
		return err
	}
	t.rows = append(t.rows, row.Clone())
	m.inserts++
	return nil
}

func (m *Memory) ReadAll(ctx context.Context, table string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	out := make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r.Clone())
	}
	return out, nil
}

// Truncate drops every row of table, keeping the table
func (m *Memory) Truncate(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		t.rows = nil
	}
}

func (m *Memory) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tables))
	for name := range m.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Inserts counts successful InsertRow calls since creation
func (m *Memory) Inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}
