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
	"sort"
	"strings"
)

// columnRole describes how a column can be used in a chart
type columnRole string

const (
	roleNumerical   columnRole = "numerical"
	roleCategorical columnRole = "categorical"
	roleTemporal    columnRole = "temporal"
	roleOther       columnRole = "other"
)

// Chart is a renderable chart suggestion for a result set. Options holds a
// ready-to-use ECharts option document so clients render it without
// understanding the data themselves.
type Chart struct {
	Type           string                 `json:"type"` // "bar", "line", or "pie"
	Title          string                 `json:"title"`
	CategoryColumn string                 `json:"category_column"`
	ValueColumn    string                 `json:"value_column"`
	Options        map[string]interface{} `json:"options"`
}

// inferColumnRoles guesses each column's role from its name and the first
// row of values. Name checks run first: date and time columns frequently
// arrive as strings, and id columns are labels no matter how numeric they
// look.
func inferColumnRoles(columns []string, rows [][]interface{}) []columnRole {
	roles := make([]columnRole, len(columns))
	for i, col := range columns {
		lower := strings.ToLower(col)
		switch {
		case strings.Contains(lower, "date") || strings.Contains(lower, "time") ||
			strings.Contains(lower, "month") || strings.Contains(lower, "year"):
			roles[i] = roleTemporal
		case strings.Contains(lower, "id"):
			roles[i] = roleCategorical
		default:
			roles[i] = roleFromValue(firstValue(rows, i))
		}
	}
	return roles
}

func firstValue(rows [][]interface{}, col int) interface{} {
	for _, row := range rows {
		if col < len(row) && row[col] != nil {
			return row[col]
		}
	}
	return nil
}

func roleFromValue(v interface{}) columnRole {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return roleNumerical
	case string, []byte:
		return roleCategorical
	case nil:
		return roleOther
	default:
		return roleOther
	}
}

// SuggestChart returns a chart for the result set, or nil when the shape
// does not support one. A chart is suggested only when the result has
// exactly one numerical column and exactly one categorical or temporal
// column, and at least two rows; anything else renders as a table only.
func SuggestChart(question string, columns []string, rows [][]interface{}) *Chart {
	if len(rows) < 2 {
		return nil
	}

	roles := inferColumnRoles(columns, rows)

	numIdx, catIdx := -1, -1
	numCount, catCount := 0, 0
	temporal := false
	for i, role := range roles {
		switch role {
		case roleNumerical:
			numCount++
			numIdx = i
		case roleCategorical:
			catCount++
			catIdx = i
		case roleTemporal:
			catCount++
			catIdx = i
			temporal = true
		}
	}
	if numCount != 1 || catCount != 1 {
		return nil
	}

	title := strings.TrimSpace(question)
	if title == "" {
		title = columns[numIdx] + " by " + columns[catIdx]
	}

	if temporal {
		return lineChart(columns, rows, catIdx, numIdx, title)
	}
	if questionWantsShare(question) {
		return pieChart(columns, rows, catIdx, numIdx, title)
	}
	return barChart(columns, rows, catIdx, numIdx, title)
}

// shareWords mark questions about composition rather than ranking, which
// read better as a pie than a bar
var shareWords = []string{
	"share", "proportion", "percentage", "percent", "breakdown",
	"composition", "distribution",
}

func questionWantsShare(question string) bool {
	lower := strings.ToLower(question)
	for _, w := range shareWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// barChart builds an ECharts bar option, sorted descending by value and
// cut to the top 15 categories to keep the axis readable
func barChart(columns []string, rows [][]interface{}, catIdx, numIdx int, title string) *Chart {
	sorted := make([][]interface{}, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return numericValue(sorted[i][numIdx]) > numericValue(sorted[j][numIdx])
	})

	if len(sorted) > 15 {
		sorted = sorted[:15]
		title += " (Top 15)"
	}

	categories := make([]interface{}, len(sorted))
	values := make([]interface{}, len(sorted))
	for i, row := range sorted {
		categories[i] = FormatValue(row[catIdx])
		values[i] = row[numIdx]
	}

	options := map[string]interface{}{
		"title":   map[string]interface{}{"text": title, "left": "center"},
		"tooltip": map[string]interface{}{"trigger": "axis", "axisPointer": map[string]interface{}{"type": "shadow"}},
		"xAxis": map[string]interface{}{
			"type":      "category",
			"data":      categories,
			"axisLabel": map[string]interface{}{"interval": 0, "rotate": 30},
		},
		"yAxis": map[string]interface{}{"type": "value"},
		"series": []interface{}{
			map[string]interface{}{
				"name":  columns[numIdx],
				"type":  "bar",
				"data":  values,
				"label": map[string]interface{}{"show": true, "position": "top"},
			},
		},
		"grid": map[string]interface{}{"containLabel": true, "left": "10%", "right": "10%", "bottom": "15%"},
	}

	return &Chart{
		Type:           "bar",
		Title:          title,
		CategoryColumn: columns[catIdx],
		ValueColumn:    columns[numIdx],
		Options:        options,
	}
}

// lineChart builds an ECharts line option in row order, which for temporal
// categories is usually already chronological
func lineChart(columns []string, rows [][]interface{}, catIdx, numIdx int, title string) *Chart {
	categories := make([]interface{}, len(rows))
	values := make([]interface{}, len(rows))
	for i, row := range rows {
		categories[i] = FormatValue(row[catIdx])
		values[i] = row[numIdx]
	}

	options := map[string]interface{}{
		"title":   map[string]interface{}{"text": title, "left": "center"},
		"tooltip": map[string]interface{}{"trigger": "axis"},
		"xAxis": map[string]interface{}{
			"type":        "category",
			"boundaryGap": false,
			"data":        categories,
		},
		"yAxis": map[string]interface{}{"type": "value"},
		"series": []interface{}{
			map[string]interface{}{
				"name":   columns[numIdx],
				"type":   "line",
				"data":   values,
				"smooth": true,
			},
		},
	}

	return &Chart{
		Type:           "line",
		Title:          title,
		CategoryColumn: columns[catIdx],
		ValueColumn:    columns[numIdx],
		Options:        options,
	}
}

// pieChart builds an ECharts pie option for a categorical/numerical pair
func pieChart(columns []string, rows [][]interface{}, catIdx, numIdx int, title string) *Chart {
	data := make([]interface{}, len(rows))
	for i, row := range rows {
		data[i] = map[string]interface{}{
			"value": row[numIdx],
			"name":  FormatValue(row[catIdx]),
		}
	}

	options := map[string]interface{}{
		"title":   map[string]interface{}{"text": title, "left": "center"},
		"tooltip": map[string]interface{}{"trigger": "item", "formatter": "{a} <br/>{b} : {c} ({d}%)"},
		"legend":  map[string]interface{}{"orient": "vertical", "left": "left"},
		"series": []interface{}{
			map[string]interface{}{
				"name":   columns[catIdx],
				"type":   "pie",
				"radius": "50%",
				"data":   data,
				"emphasis": map[string]interface{}{
					"itemStyle": map[string]interface{}{
						"shadowBlur":    10,
						"shadowOffsetX": 0,
						"shadowColor":   "rgba(0, 0, 0, 0.5)",
					},
				},
			},
		},
	}

	return &Chart{
		Type:           "pie",
		Title:          title,
		CategoryColumn: columns[catIdx],
		ValueColumn:    columns[numIdx],
		Options:        options,
	}
}

// numericValue coerces a cell to float64 for sorting; non-numeric cells
// sort last
func numericValue(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	default:
		return -1 << 53
	}
}
