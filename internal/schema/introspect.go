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
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Introspect reads table and column metadata from the database and returns
// a fresh immutable Descriptor. The driver name selects the catalog queries:
// "sqlite" uses sqlite_master and PRAGMA statements, "postgres" uses
// information_schema.
func Introspect(ctx context.Context, db *sql.DB, driver string) (*Descriptor, error) {
	switch driver {
	case "sqlite":
		return introspectSQLite(ctx, db)
	case "postgres", "pgx":
		return introspectPostgres(ctx, db)
	default:
		return nil, fmt.Errorf("unsupported driver for introspection: %s", driver)
	}
}

func introspectSQLite(ctx context.Context, db *sql.DB) (*Descriptor, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tableNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tableNames = append(tableNames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tableNames) == 0 {
		return nil, fmt.Errorf("no tables found in database")
	}

	d := &Descriptor{LoadedAt: time.Now()}

	for _, name := range tableNames {
		table := TableInfo{Name: name}

		// PRAGMA table_info returns cid, name, type, notnull, dflt_value, pk
		colRows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read columns for %s: %w", name, err)
		}
		for colRows.Next() {
			var cid, notNull, pk int
			var colName, dataType string
			var dflt sql.NullString
			if err := colRows.Scan(&cid, &colName, &dataType, &notNull, &dflt, &pk); err != nil {
				_ = colRows.Close()
				return nil, fmt.Errorf("failed to scan column for %s: %w", name, err)
			}
			table.Columns = append(table.Columns, ColumnInfo{
				Name:         colName,
				DataType:     dataType,
				Nullable:     notNull == 0,
				DefaultValue: dflt.String,
				IsPrimaryKey: pk > 0,
			})
		}
		if err := colRows.Close(); err != nil {
			return nil, err
		}
		d.Tables = append(d.Tables, table)

		// PRAGMA foreign_key_list returns id, seq, table, from, to, on_update, on_delete, match
		fkRows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read foreign keys for %s: %w", name, err)
		}
		fkByID := make(map[int]*Relationship)
		var fkOrder []int
		for fkRows.Next() {
			var id, seq int
			var refTable, fromCol string
			var toCol sql.NullString
			var onUpdate, onDelete, match string
			if err := fkRows.Scan(&id, &seq, &refTable, &fromCol, &toCol, &onUpdate, &onDelete, &match); err != nil {
				_ = fkRows.Close()
				return nil, fmt.Errorf("failed to scan foreign key for %s: %w", name, err)
			}
			rel, ok := fkByID[id]
			if !ok {
				rel = &Relationship{FromTable: name, ToTable: refTable}
				fkByID[id] = rel
				fkOrder = append(fkOrder, id)
			}
			rel.FromColumns = append(rel.FromColumns, fromCol)
			rel.ToColumns = append(rel.ToColumns, toCol.String)
		}
		if err := fkRows.Close(); err != nil {
			return nil, err
		}
		sort.Ints(fkOrder)
		for _, id := range fkOrder {
			d.Relationships = append(d.Relationships, *fkByID[id])
		}
	}

	return d, nil
}

func introspectPostgres(ctx context.Context, db *sql.DB) (*Descriptor, error) {
	query := `
		SELECT c.table_name,
		       c.column_name,
		       c.data_type,
		       c.is_nullable,
		       COALESCE(c.column_default, ''),
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_name = c.table_name
		             AND kcu.column_name = c.column_name
		       ) AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY c.table_name, c.ordinal_position`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	d := &Descriptor{LoadedAt: time.Now()}
	var current *TableInfo

	for rows.Next() {
		var tableName, columnName, dataType, isNullable, columnDefault string
		var isPrimaryKey bool
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable, &columnDefault, &isPrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if current == nil || current.Name != tableName {
			d.Tables = append(d.Tables, TableInfo{Name: tableName})
			current = &d.Tables[len(d.Tables)-1]
		}
		current.Columns = append(current.Columns, ColumnInfo{
			Name:         columnName,
			DataType:     dataType,
			Nullable:     isNullable == "YES",
			DefaultValue: columnDefault,
			IsPrimaryKey: isPrimaryKey,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(d.Tables) == 0 {
		return nil, fmt.Errorf("no tables found in database")
	}

	fkQuery := `
		SELECT tc.table_name,
		       kcu.column_name,
		       ccu.table_name AS referred_table,
		       ccu.column_name AS referred_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		 AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		ORDER BY tc.table_name, kcu.ordinal_position`

	fkRows, err := db.QueryContext(ctx, fkQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer func() { _ = fkRows.Close() }()

	for fkRows.Next() {
		var fromTable, fromCol, toTable, toCol string
		if err := fkRows.Scan(&fromTable, &fromCol, &toTable, &toCol); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		d.Relationships = append(d.Relationships, Relationship{
			FromTable:   fromTable,
			FromColumns: []string{fromCol},
			ToTable:     toTable,
			ToColumns:   []string{toCol},
		})
	}
	if err := fkRows.Err(); err != nil {
		return nil, err
	}

	return d, nil
}
