package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"studydash/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// renderTable writes rows under headers as a bordered table
func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func renderTitle(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render(title))
}

func renderWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, warnStyle.Render("! "+msg))
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01-02 15:04")
}

func formatInt(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func formatFloat(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

// formatPayload flattens a response payload into "label: value" pairs
func formatPayload(p models.ResponsePayload) string {
	var parts []string
	if sections, ok := p.AsSections(); ok {
		for _, sec := range sections {
			for _, item := range sec.Items {
				label := item.Label
				if label == "" {
					label = item.QuestionID
				}
				parts = append(parts, fmt.Sprintf("%s: %v", label, item.Value))
			}
		}
	}
	if raw, ok := p.AsRaw(); ok {
		for _, a := range raw {
			parts = append(parts, fmt.Sprintf("%s: %v", a.QuestionID, a.Value))
		}
	}
	out := []rune(strings.Join(parts, "; "))
	if len(out) > 80 {
		return string(out[:77]) + "..."
	}
	return string(out)
}
