package report

import (
	"fmt"
	"io"

	"agentarena/internal/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorBorder  = lipgloss.Color("#2a3850")
	colorHeader  = lipgloss.Color("#8BC34A")
	colorFailure = lipgloss.Color("#e53935")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorHeader)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorHeader).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	failureStyle = cellStyle.Foreground(colorFailure)
	summaryStyle = lipgloss.NewStyle().Faint(true)
)

// TableReporter renders one row per (unit, metric) pair, units and metric
// keys sorted. Rows of failed units are styled as failures.
type TableReporter struct{}

type tableRow struct {
	unit, key, value string
	failed           bool
}

func (r *TableReporter) Report(w io.Writer, experiment string, results types.Results) error {
	rows := tableRows(results)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers("UNIT", "METRIC", "VALUE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && rows[row].failed {
				return failureStyle
			}
			return cellStyle
		})
	for _, row := range rows {
		t.Row(row.unit, row.key, row.value)
	}

	failed := len(results.Failed())
	summary := fmt.Sprintf("%d units, %d succeeded, %d failed", len(results), len(results)-failed, failed)

	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", titleStyle.Render(experiment), t.Render(), summaryStyle.Render(summary))
	return err
}

func tableRows(results types.Results) []tableRow {
	var rows []tableRow
	for _, name := range results.Names() {
		m := results[name]
		if msg, failed := m.Err(); failed {
			rows = append(rows, tableRow{unit: name, key: types.ErrorKey, value: msg, failed: true})
			continue
		}
		if len(m) == 0 {
			rows = append(rows, tableRow{unit: name, key: "-", value: "-"})
			continue
		}
		for _, key := range m.Keys() {
			rows = append(rows, tableRow{unit: name, key: key, value: formatValue(m[key])})
		}
	}
	return rows
}
