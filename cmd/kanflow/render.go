package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/evanschultz/kanflow/internal/adapters/server/common"
	"github.com/evanschultz/kanflow/internal/app"
	"github.com/evanschultz/kanflow/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

// newTable builds a rounded table with the shared header styling.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// renderMetricsTable renders per-item metrics.
func renderMetricsTable(result common.ItemMetricsResult) string {
	t := newTable("Key", "Type", "Status", "Started", "Stopped", "Cycle", "Age")
	for _, item := range result.Items {
		key := item.Key
		if item.Expedite {
			key += " !"
		}
		t.Row(key, item.Type, item.Status, dateCell(item.StartedAt), dateCell(item.StoppedAt), daysCell(item.CycleTimeDays), daysCell(item.AgeDays))
	}
	return titleStyle.Render("Item metrics as of "+result.AsOf) + "\n" + t.Render()
}

// renderDailyTable renders one row per reconstructed day.
func renderDailyTable(result common.DailySnapshotsResult) string {
	t := newTable("Date", "Active", "Completed", "Completed keys")
	for _, day := range result.Days {
		t.Row(day.Date, strconv.Itoa(len(day.ActiveKeys)), strconv.Itoa(len(day.CompletedKeys)), strings.Join(day.CompletedKeys, ", "))
	}
	return titleStyle.Render(fmt.Sprintf("Daily work in progress %s to %s", result.From, result.To)) + "\n" + t.Render()
}

// renderItemState renders one blocked/stalled classification.
func renderItemState(view app.ItemStateView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s on %s: %s", view.Key, view.Date, view.State)))
	for _, reason := range view.Reasons {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("- " + reason))
	}
	return b.String()
}

// renderQualityTable renders problem counts and findings.
func renderQualityTable(result common.QualityReportResult) string {
	counts := newTable("Category", "Count")
	for _, category := range app.ProblemCategories() {
		counts.Row(string(category), strconv.Itoa(result.Counts[string(category)]))
	}
	problems := newTable("Item", "Category", "Detail")
	for _, problem := range result.Problems {
		problems.Row(problem.ItemKey, string(problem.Category), problem.Detail)
	}
	return counts.Render() + "\n" + problems.Render()
}

// renderImportsTable renders recorded import batches.
func renderImportsTable(batches []domain.ImportBatch) string {
	t := newTable("Batch", "Source", "Items", "Imported")
	for _, batch := range batches {
		t.Row(batch.ID, batch.Source, strconv.Itoa(batch.ItemCount), batch.ImportedAt.Format(time.RFC3339))
	}
	return t.Render()
}

// qualityMarkdown formats a quality report as markdown grouped by category.
func qualityMarkdown(result common.QualityReportResult) string {
	var b strings.Builder
	b.WriteString("# Data quality\n\n")
	b.WriteString("| Category | Count |\n| --- | ---: |\n")
	categories := app.ProblemCategories()
	for _, category := range categories {
		fmt.Fprintf(&b, "| %s | %d |\n", category, result.Counts[string(category)])
	}
	for _, category := range categories {
		var lines []string
		for _, problem := range result.Problems {
			if problem.Category == category {
				lines = append(lines, fmt.Sprintf("- **%s** %s", problem.ItemKey, problem.Detail))
			}
		}
		if len(lines) == 0 {
			continue
		}
		slices.Sort(lines)
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", category, strings.Join(lines, "\n"))
	}
	return b.String()
}

// renderQualityMarkdown renders markdown for the terminal, falling back to the raw text.
func renderQualityMarkdown(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	if width < 24 {
		width = 24
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

func dateCell(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(domain.DateLayout)
}

func daysCell(days *int) string {
	if days == nil {
		return "-"
	}
	return strconv.Itoa(*days) + "d"
}
