package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Column describes one column of an introspected table.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// SchemaInfo is a snapshot of the user-visible schema. It feeds both the
// generation prompt and the guard's table allow-list.
type SchemaInfo struct {
	Tables map[string][]Column
}

// TableNames returns the table names in sorted order.
func (s *SchemaInfo) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Description renders the schema as prompt context.
func (s *SchemaInfo) Description() string {
	var b strings.Builder
	for _, name := range s.TableNames() {
		fmt.Fprintf(&b, "Table: %s\n", name)
		for _, col := range s.Tables[name] {
			nullable := "not null"
			if col.Nullable {
				nullable = "nullable"
			}
			fmt.Fprintf(&b, "  - %s (%s, %s)\n", col.Name, col.DataType, nullable)
		}
	}
	return b.String()
}

// LoadSchema introspects the public schema via information_schema.
func (db *DB) LoadSchema(ctx context.Context) (*SchemaInfo, error) {
	query := `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public'
		  AND table_name NOT IN ('schema_migrations', 'chat_audit_log')
		ORDER BY table_name, ordinal_position
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect schema: %w", err)
	}
	defer rows.Close()

	info := &SchemaInfo{Tables: make(map[string][]Column)}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		info.Tables[table] = append(info.Tables[table], Column{
			Name:     column,
			DataType: dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read schema rows: %w", err)
	}
	return info, nil
}

// SchemaCache serves a TTL-cached SchemaInfo so every chat request does not
// re-introspect the catalog.
type SchemaCache struct {
	db  *DB
	ttl time.Duration

	mu       sync.Mutex
	info     *SchemaInfo
	loadedAt time.Time
}

func NewSchemaCache(db *DB, ttl time.Duration) *SchemaCache {
	return &SchemaCache{db: db, ttl: ttl}
}

// Get returns the cached schema, reloading it when stale. A stale copy is
// served if the reload fails and a previous snapshot exists.
func (c *SchemaCache) Get(ctx context.Context) (*SchemaInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info != nil && time.Since(c.loadedAt) < c.ttl {
		return c.info, nil
	}
	info, err := c.db.LoadSchema(ctx)
	if err != nil {
		if c.info != nil {
			return c.info, nil
		}
		return nil, err
	}
	c.info = info
	c.loadedAt = time.Now()
	return info, nil
}

// Description implements the pipeline's schema provider.
func (c *SchemaCache) Description(ctx context.Context) (string, error) {
	info, err := c.Get(ctx)
	if err != nil {
		return "", err
	}
	return info.Description(), nil
}
