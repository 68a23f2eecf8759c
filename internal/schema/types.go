/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package schema

import (
	"strings"
	"time"
)

// ColumnInfo describes a single column of a table.
type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	Nullable     bool   `json:"nullable"`
	DefaultValue string `json:"default_value,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key,omitempty"`
}

// TableInfo describes a table and its columns, in declaration order.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// Relationship describes a foreign-key link between two tables.
type Relationship struct {
	FromTable   string   `json:"from_table"`
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table"`
	ToColumns   []string `json:"to_columns"`
}

// Descriptor is an immutable snapshot of the database structure.
// It is created by introspection (or loaded from cache) and never
// mutated afterwards; a refresh produces a new Descriptor.
type Descriptor struct {
	Tables        []TableInfo    `json:"tables"`
	Relationships []Relationship `json:"relationships,omitempty"`
	LoadedAt      time.Time      `json:"loaded_at"`
}

// Table returns the table with the given name, matched case-insensitively.
func (d *Descriptor) Table(name string) (*TableInfo, bool) {
	for i := range d.Tables {
		if strings.EqualFold(d.Tables[i].Name, name) {
			return &d.Tables[i], true
		}
	}
	return nil, false
}

// HasTable reports whether a table with the given name exists.
func (d *Descriptor) HasTable(name string) bool {
	_, ok := d.Table(name)
	return ok
}

// HasColumn reports whether any table has a column with the given name,
// matched case-insensitively.
func (d *Descriptor) HasColumn(name string) bool {
	for i := range d.Tables {
		for j := range d.Tables[i].Columns {
			if strings.EqualFold(d.Tables[i].Columns[j].Name, name) {
				return true
			}
		}
	}
	return false
}

// TableHasColumn reports whether the named table has the named column.
func (d *Descriptor) TableHasColumn(table, column string) bool {
	t, ok := d.Table(table)
	if !ok {
		return false
	}
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, column) {
			return true
		}
	}
	return false
}

// TableNames returns the table names in descriptor order.
func (d *Descriptor) TableNames() []string {
	names := make([]string, len(d.Tables))
	for i := range d.Tables {
		names[i] = d.Tables[i].Name
	}
	return names
}

// Describe returns the relationship as a human-readable join hint.
func (r Relationship) Describe() string {
	return "`" + r.FromTable + "`.`" + strings.Join(r.FromColumns, ", ") +
		"` can be joined with `" + r.ToTable + "`.`" + strings.Join(r.ToColumns, ", ") + "`"
}
