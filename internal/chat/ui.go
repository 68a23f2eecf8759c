/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package chat

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"nlsql-agent/internal/display"
)

// Color codes for terminal output
const (
	ColorReset   = "\033[0m"
	ColorRed     = "\033[31m"
	ColorGreen   = "\033[32m"
	ColorYellow  = "\033[33m"
	ColorBlue    = "\033[34m"
	ColorMagenta = "\033[35m"
	ColorCyan    = "\033[36m"
	ColorGray    = "\033[90m"
	ColorBold    = "\033[1m"
)

// UI handles the terminal user interface
type UI struct {
	noColor        bool
	RenderMarkdown bool
}

// NewUI creates a new UI instance
func NewUI(noColor, renderMarkdown bool) *UI {
	return &UI{
		noColor:        noColor,
		RenderMarkdown: renderMarkdown,
	}
}

// colorize applies color if colors are enabled
func (ui *UI) colorize(color, text string) string {
	if ui.noColor {
		return text
	}
	return color + text + ColorReset
}

// PrintWelcome prints the welcome message
func (ui *UI) PrintWelcome(target string) {
	banner := fmt.Sprintf(`
NLSQL Agent - ask questions about your data in plain language
Connected to: %s
Type 'quit' or 'exit' to leave, 'help' for commands
`, target)
	fmt.Println(ui.colorize(ColorCyan, banner))
}

// GetPrompt returns the prompt string for readline
func (ui *UI) GetPrompt() string {
	return ui.colorize(ColorGreen+ColorBold, "You: ")
}

// PrintPayload renders one answer: the generated SQL, the result table,
// the status message, and a chart note when one was suggested
func (ui *UI) PrintPayload(p *display.Payload) {
	fmt.Println()

	if p.SQL != "" {
		ui.printSQL(p.SQL)
	}

	if p.Succeeded() && len(p.Columns) > 0 && len(p.Rows) > 0 {
		ui.printTable(p.Columns, p.Rows)
	}

	if p.Succeeded() {
		fmt.Println(ui.colorize(ColorBlue, "Result: ") + p.Message)
	} else {
		fmt.Println(ui.colorize(ColorRed, "Error: ") + p.Message)
		if p.Error != nil && p.Error.Hint != "" {
			fmt.Println(ui.colorize(ColorGray, "  detail: "+p.Error.Hint))
		}
	}

	if p.Chart != nil {
		fmt.Println(ui.colorize(ColorMagenta,
			fmt.Sprintf("Chart: %s of %s by %s", p.Chart.Type, p.Chart.ValueColumn, p.Chart.CategoryColumn)))
	}
	fmt.Println()
}

// printSQL renders the generated statement, through glamour as a fenced
// code block when markdown rendering is on
func (ui *UI) printSQL(statement string) {
	if ui.RenderMarkdown {
		style := "dark"
		if ui.noColor {
			style = "notty"
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStylePath(style),
			glamour.WithWordWrap(ui.terminalWidth()),
		)
		if err == nil {
			rendered, err := r.Render("```sql\n" + statement + "\n```")
			if err == nil {
				fmt.Print(rendered)
				return
			}
		}
	}
	fmt.Println(ui.colorize(ColorGray, "SQL: "+statement))
}

// printTable renders rows with go-pretty
func (ui *UI) printTable(columns []string, rows [][]interface{}) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(columns))
	for i, col := range columns {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		prettyRow := make(table.Row, len(row))
		for i, val := range row {
			prettyRow[i] = display.FormatValue(val)
		}
		t.AppendRow(prettyRow)
	}

	t.Render()
}

// PrintSystemMessage prints a system message
func (ui *UI) PrintSystemMessage(text string) {
	fmt.Println(ui.colorize(ColorYellow, "System: ") + text)
}

// PrintError prints an error message
func (ui *UI) PrintError(text string) {
	fmt.Println(ui.colorize(ColorRed, "Error: ") + text)
}

// PrintHelp prints the command reference
func (ui *UI) PrintHelp() {
	help := strings.TrimSpace(`
Commands:
  help      Show this help
  refresh   Re-read the database schema
  retry     Resubmit the last failed question, telling the model what went wrong
  quit      Exit (also: exit, Ctrl+D)

Anything else is treated as a question about the data.
`)
	fmt.Println(ui.colorize(ColorCyan, help))
}

// terminalWidth returns the terminal width capped for readability
func (ui *UI) terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 100
	}
	if width > 120 {
		return 120
	}
	return width
}
