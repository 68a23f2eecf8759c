/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package prompt

import (
	"errors"
	"strings"
	"testing"

	"nlsql-agent/internal/schema"
)

func testSchema() *schema.Descriptor {
	return &schema.Descriptor{
		Tables: []schema.TableInfo{
			{
				Name: "orders",
				Columns: []schema.ColumnInfo{
					{Name: "id", DataType: "INTEGER", IsPrimaryKey: true},
					{Name: "amount", DataType: "REAL"},
				},
			},
		},
	}
}

func TestBuildContainsQuestionAndSchema(t *testing.T) {
	p, err := Build("total sales per month", testSchema(), "sqlite", "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !strings.Contains(p, "total sales per month") {
		t.Error("prompt should contain the question")
	}
	if !strings.Contains(p, "orders") || !strings.Contains(p, "amount") {
		t.Error("prompt should contain the schema")
	}
	if !strings.Contains(p, "SQLite") {
		t.Error("prompt should name the dialect")
	}
	if !strings.Contains(p, "exactly one SELECT statement") {
		t.Error("prompt should instruct single SELECT output")
	}
}

func TestBuildDeterministic(t *testing.T) {
	d := testSchema()
	first, err := Build("top customers", d, "sqlite", "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Build("top customers", d, "sqlite", "")
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if again != first {
			t.Fatal("identical inputs must produce identical prompts")
		}
	}
}

func TestBuildEmptyQuestion(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := Build(q, testSchema(), "sqlite", ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("question %q: expected ErrInvalidInput, got %v", q, err)
		}
	}
}

func TestBuildNoSchema(t *testing.T) {
	if _, err := Build("anything", nil, "sqlite", ""); !errors.Is(err, ErrNoSchema) {
		t.Errorf("expected ErrNoSchema for nil descriptor, got %v", err)
	}
	if _, err := Build("anything", &schema.Descriptor{}, "sqlite", ""); !errors.Is(err, ErrNoSchema) {
		t.Errorf("expected ErrNoSchema for empty descriptor, got %v", err)
	}
}

func TestBuildPriorErrorHint(t *testing.T) {
	withHint, err := Build("top customers", testSchema(), "sqlite", "table employees does not exist")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(withHint, "table employees does not exist") {
		t.Error("prompt should carry the prior error hint")
	}

	withoutHint, err := Build("top customers", testSchema(), "sqlite", "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if strings.Contains(withoutHint, "previous attempt") {
		t.Error("prompt without hint should not mention a previous attempt")
	}
}

func TestBuildDialectGuidance(t *testing.T) {
	sqlite, err := Build("sales this year", testSchema(), "sqlite", "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(sqlite, "strftime") {
		t.Error("sqlite prompt should steer toward strftime")
	}

	postgres, err := Build("sales this year", testSchema(), "postgres", "")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(postgres, "EXTRACT") {
		t.Error("postgres prompt should mention EXTRACT")
	}
}
