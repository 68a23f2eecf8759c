/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package display

import (
	"strings"
	"testing"
	"time"

	"nlsql-agent/internal/executor"
	"nlsql-agent/internal/llm"
	"nlsql-agent/internal/sqlguard"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"bytes", []byte("raw"), "raw"},
		{"int", 42, "42"},
		{"float", 3.5, "3.5"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"tab escaped", "a\tb", "a\\tb"},
		{"newline escaped", "a\nb", "a\\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.input); got != tt.want {
				t.Errorf("FormatValue(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatValueTime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got := FormatValue(ts)
	if got != "2024-03-01T12:00:00Z" {
		t.Errorf("unexpected time formatting: %q", got)
	}
}

func TestFormatTSV(t *testing.T) {
	out := FormatTSV([]string{"name", "total"}, [][]interface{}{
		{"alice", 10},
		{"bob", nil},
	})
	want := "name\ttotal\nalice\t10\nbob\t"
	if out != want {
		t.Errorf("FormatTSV = %q, want %q", out, want)
	}
}

func TestSuggestChartBar(t *testing.T) {
	columns := []string{"department", "total_salary"}
	rows := [][]interface{}{
		{"engineering", 300.0},
		{"sales", 500.0},
		{"support", 100.0},
	}

	chart := SuggestChart("total salary per department", columns, rows)
	if chart == nil {
		t.Fatal("expected chart for one categorical + one numerical column")
	}
	if chart.Type != "bar" {
		t.Errorf("expected bar chart, got %s", chart.Type)
	}
	if chart.CategoryColumn != "department" || chart.ValueColumn != "total_salary" {
		t.Errorf("wrong column mapping: %s / %s", chart.CategoryColumn, chart.ValueColumn)
	}

	// Bar data sorted descending by value
	xAxis := chart.Options["xAxis"].(map[string]interface{})
	categories := xAxis["data"].([]interface{})
	if categories[0] != "sales" {
		t.Errorf("bar categories should be sorted by value descending, got %v", categories)
	}
}

func TestSuggestChartLineForTemporal(t *testing.T) {
	columns := []string{"month", "revenue"}
	rows := [][]interface{}{
		{"2024-01", 100.0},
		{"2024-02", 120.0},
		{"2024-03", 90.0},
	}

	chart := SuggestChart("revenue by month", columns, rows)
	if chart == nil {
		t.Fatal("expected chart")
	}
	if chart.Type != "line" {
		t.Errorf("temporal category should produce a line chart, got %s", chart.Type)
	}

	// Line data kept in row order
	xAxis := chart.Options["xAxis"].(map[string]interface{})
	categories := xAxis["data"].([]interface{})
	if categories[0] != "2024-01" || categories[2] != "2024-03" {
		t.Errorf("line categories should keep row order, got %v", categories)
	}
}

func TestSuggestChartPieForShareQuestion(t *testing.T) {
	columns := []string{"channel", "revenue"}
	rows := [][]interface{}{
		{"web", 300.0},
		{"store", 500.0},
		{"phone", 200.0},
	}

	chart := SuggestChart("revenue share by channel", columns, rows)
	if chart == nil {
		t.Fatal("expected chart")
	}
	if chart.Type != "pie" {
		t.Errorf("share question should produce a pie chart, got %s", chart.Type)
	}

	series := chart.Options["series"].([]interface{})
	first := series[0].(map[string]interface{})
	if first["type"] != "pie" {
		t.Errorf("series type should be pie, got %v", first["type"])
	}
	data := first["data"].([]interface{})
	if len(data) != 3 {
		t.Errorf("expected 3 pie slices, got %d", len(data))
	}

	// The same data with a ranking question still renders as a bar
	if chart := SuggestChart("revenue per channel", columns, rows); chart.Type != "bar" {
		t.Errorf("ranking question should stay a bar chart, got %s", chart.Type)
	}
}

func TestSuggestChartShapeRules(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]interface{}
	}{
		{
			name:    "single row",
			columns: []string{"department", "total"},
			rows:    [][]interface{}{{"sales", 500.0}},
		},
		{
			name:    "two numerical columns",
			columns: []string{"price", "quantity"},
			rows:    [][]interface{}{{1.0, 2.0}, {3.0, 4.0}},
		},
		{
			name:    "two categorical columns",
			columns: []string{"name", "city"},
			rows:    [][]interface{}{{"alice", "berlin"}, {"bob", "paris"}},
		},
		{
			name:    "three columns",
			columns: []string{"department", "total", "headcount"},
			rows:    [][]interface{}{{"sales", 500.0, 5}, {"support", 100.0, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if chart := SuggestChart("q", tt.columns, tt.rows); chart != nil {
				t.Errorf("expected no chart for this shape, got %s", chart.Type)
			}
		})
	}
}

func TestSuggestChartBarTop15(t *testing.T) {
	columns := []string{"customer", "total"}
	var rows [][]interface{}
	for i := 0; i < 20; i++ {
		rows = append(rows, []interface{}{string(rune('a' + i)), float64(i)})
	}

	chart := SuggestChart("totals per customer", columns, rows)
	if chart == nil {
		t.Fatal("expected chart")
	}
	xAxis := chart.Options["xAxis"].(map[string]interface{})
	categories := xAxis["data"].([]interface{})
	if len(categories) != 15 {
		t.Errorf("expected top 15 categories, got %d", len(categories))
	}
	if !strings.Contains(chart.Title, "Top 15") {
		t.Errorf("title should note truncation: %s", chart.Title)
	}
}

func TestSuggestChartIDColumnIsCategorical(t *testing.T) {
	columns := []string{"customer_id", "total"}
	rows := [][]interface{}{
		{int64(1), 500.0},
		{int64(2), 100.0},
	}

	chart := SuggestChart("totals per customer", columns, rows)
	if chart == nil {
		t.Fatal("id column should count as categorical, enabling a chart")
	}
	if chart.CategoryColumn != "customer_id" {
		t.Errorf("expected customer_id as category, got %s", chart.CategoryColumn)
	}
}

func TestResultPayloadMessages(t *testing.T) {
	outcome := &executor.Outcome{
		Columns: []string{"id"},
		Rows:    [][]interface{}{{int64(1)}, {int64(2)}},
	}
	p := Result("list orders", "SELECT id FROM orders", outcome)
	if !p.Succeeded() {
		t.Error("result payload should succeed")
	}
	if p.Message != "2 rows returned." {
		t.Errorf("unexpected message: %s", p.Message)
	}

	empty := Result("list orders", "SELECT id FROM orders", &executor.Outcome{Columns: []string{"id"}})
	if !strings.Contains(empty.Message, "no rows") {
		t.Errorf("empty result needs its own message: %s", empty.Message)
	}

	truncated := Result("list orders", "SELECT id FROM orders", &executor.Outcome{
		Columns:   []string{"id"},
		Rows:      [][]interface{}{{int64(1)}, {int64(2)}, {int64(3)}},
		Truncated: true,
	})
	if !strings.Contains(truncated.Message, "first 3 rows") {
		t.Errorf("truncated result needs its own message: %s", truncated.Message)
	}
}

func TestRejectionPayloadDistinctMessages(t *testing.T) {
	reasons := []sqlguard.Reason{
		sqlguard.ReasonNotSingleStatement,
		sqlguard.ReasonForbiddenVerb,
		sqlguard.ReasonUnknownIdentifier,
		sqlguard.ReasonUnparseable,
	}

	seen := make(map[string]sqlguard.Reason)
	for _, reason := range reasons {
		p := Rejection("q", sqlguard.Result{Rejected: true, Reason: reason, Detail: "detail"})
		if p.Succeeded() {
			t.Errorf("rejection payload for %s should carry an error", reason)
		}
		if p.Error.Stage != "validation" {
			t.Errorf("wrong stage for %s: %s", reason, p.Error.Stage)
		}
		if prior, dup := seen[p.Message]; dup {
			t.Errorf("reasons %s and %s share the message %q", prior, reason, p.Message)
		}
		seen[p.Message] = reason
	}
}

func TestExecutionErrorPayloadDistinctMessages(t *testing.T) {
	categories := []executor.Category{
		executor.CategoryTimeout,
		executor.CategorySyntax,
		executor.CategoryPermission,
		executor.CategoryOther,
	}

	seen := make(map[string]executor.Category)
	for _, category := range categories {
		err := &executor.ExecError{Category: category, Message: "boom"}
		p := ExecutionError("q", "SELECT 1", err)
		if p.Succeeded() {
			t.Errorf("execution error payload for %s should carry an error", category)
		}
		if p.Error.Code != string(category) {
			t.Errorf("wrong code for %s: %s", category, p.Error.Code)
		}
		if prior, dup := seen[p.Message]; dup {
			t.Errorf("categories %s and %s share the message %q", prior, category, p.Message)
		}
		seen[p.Message] = category
	}
}

func TestModelErrorPayload(t *testing.T) {
	err := &llm.RequestError{Kind: llm.KindAuth, Message: "invalid key"}
	p := ModelError("q", err)
	if p.Succeeded() {
		t.Error("model error payload should carry an error")
	}
	if p.Error.Stage != "model" || p.Error.Code != string(llm.KindAuth) {
		t.Errorf("unexpected error info: %+v", p.Error)
	}
	if !strings.Contains(p.Message, "API key") {
		t.Errorf("auth failure should mention the API key: %s", p.Message)
	}
}

func TestErrorHint(t *testing.T) {
	p := Rejection("q", sqlguard.Result{
		Rejected: true,
		Reason:   sqlguard.ReasonUnknownIdentifier,
		Detail:   "unknown column salary",
	})
	hint := p.ErrorHint()
	if !strings.Contains(hint, "unknown column salary") {
		t.Errorf("hint should carry the detail: %s", hint)
	}

	success := Result("q", "SELECT 1", &executor.Outcome{Columns: []string{"c"}})
	if success.ErrorHint() != "" {
		t.Error("successful payload should have no error hint")
	}
}
