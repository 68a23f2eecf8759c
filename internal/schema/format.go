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
	"fmt"
	"strings"
)

// Overview renders a compact text summary of the whole schema, one line of
// columns per table, suitable for grounding a prompt without blowing up its
// size.
func Overview(d *Descriptor) string {
	var sb strings.Builder

	for _, table := range d.Tables {
		if len(table.Columns) == 0 {
			continue
		}
		cols := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			cols[i] = fmt.Sprintf("`%s` (%s)", col.Name, col.DataType)
		}
		sb.WriteString(fmt.Sprintf("-- Table: `%s`\n", table.Name))
		sb.WriteString(fmt.Sprintf("-- Columns: %s\n", strings.Join(cols, ", ")))
	}

	writeRelationships(&sb, d.Relationships)
	return strings.TrimRight(sb.String(), "\n")
}

// Detailed renders CREATE TABLE statements for the given tables, followed by
// the foreign-key relationships touching them. Unknown table names are
// skipped. An empty table list renders every table.
func Detailed(d *Descriptor, tables []string) string {
	if len(tables) == 0 {
		tables = d.TableNames()
	}

	var parts []string
	selected := make(map[string]bool, len(tables))

	for _, name := range tables {
		table, ok := d.Table(name)
		if !ok {
			continue
		}
		selected[strings.ToLower(table.Name)] = true

		var cols []string
		for _, col := range table.Columns {
			line := fmt.Sprintf("  `%s` %s", col.Name, col.DataType)
			if !col.Nullable {
				line += " NOT NULL"
			}
			if col.IsPrimaryKey {
				line += " PRIMARY KEY"
			}
			cols = append(cols, line)
		}
		parts = append(parts, fmt.Sprintf("CREATE TABLE `%s` (\n%s\n);", table.Name, strings.Join(cols, ",\n")))
	}

	var rels []Relationship
	for _, rel := range d.Relationships {
		if selected[strings.ToLower(rel.FromTable)] || selected[strings.ToLower(rel.ToTable)] {
			rels = append(rels, rel)
		}
	}
	if len(rels) > 0 {
		var sb strings.Builder
		sb.WriteString("/*\nForeign Key Relationships:\n")
		for _, rel := range rels {
			sb.WriteString("-- " + rel.Describe() + "\n")
		}
		sb.WriteString("*/")
		parts = append(parts, sb.String())
	}

	return strings.Join(parts, "\n\n")
}

func writeRelationships(sb *strings.Builder, rels []Relationship) {
	if len(rels) == 0 {
		return
	}
	sb.WriteString("\n-- Relationships:\n")
	for _, rel := range rels {
		sb.WriteString("-- " + rel.Describe() + "\n")
	}
}
