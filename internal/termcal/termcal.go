// Package termcal draws a month of occurrences for the terminal.
package termcal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"teamsync/internal/model"
)

const cellWidth = 16

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#c0caf5")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Width(cellWidth)
	outStyle    = cellStyle.Foreground(lipgloss.Color("#565f89"))
	todayStyle  = lipgloss.NewStyle().Bold(true).Reverse(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3b4261"))
)

// Options tune the month grid.
type Options struct {
	// Today is highlighted when it falls in the month (YYYY-MM-DD).
	Today string
	// WeekStart is the first column; Sunday by default.
	WeekStart time.Weekday
	// MaxPerDay caps the lines per day before "+N more". Zero means 3.
	MaxPerDay int
}

// Month renders the grid for year/month with instances placed on their dates.
func Month(year int, month time.Month, instances []model.Instance, opts Options) string {
	if opts.MaxPerDay <= 0 {
		opts.MaxPerDay = 3
	}
	byDate := make(map[string][]model.Instance)
	for _, in := range instances {
		byDate[in.Ref.Date] = append(byDate[in.Ref.Date], in)
	}

	headers := make([]string, 7)
	for i := range headers {
		headers[i] = time.Weekday((int(opts.WeekStart) + i) % 7).String()[:3]
	}

	prefix := model.DateOf(year, month, 1)[:7]
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		BorderRow(true).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, week := range model.MonthWeeks(year, month, opts.WeekStart) {
		row := make([]string, 0, 7)
		for _, date := range week {
			row = append(row, dayCell(date, date[:7] == prefix, date == opts.Today, byDate[date], opts.MaxPerDay))
		}
		t.Row(row...)
	}

	title := titleStyle.Render(time.Date(year, month, 1, 12, 0, 0, 0, time.UTC).Format("January 2006"))
	return lipgloss.JoinVertical(lipgloss.Left, title, t.Render())
}

func dayCell(date string, inMonth, today bool, instances []model.Instance, max int) string {
	day := strings.TrimLeft(date[8:], "0")
	if !inMonth {
		return outStyle.Render(day)
	}
	if today {
		day = todayStyle.Render(day)
	}
	lines := []string{day}
	for i, in := range instances {
		if i == max {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("+%d more", len(instances)-max)))
			break
		}
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(in.Event.Color.Hex()))
		lines = append(lines, swatch.Render(truncate(in.Event.StartTime+" "+in.Event.Title, cellWidth-2)))
	}
	return strings.Join(lines, "\n")
}

// Agenda lists instances one per line, grouped by date.
func Agenda(instances []model.Instance) string {
	if len(instances) == 0 {
		return dimStyle.Render("No events")
	}
	var b strings.Builder
	last := ""
	for _, in := range instances {
		if in.Ref.Date != last {
			if last != "" {
				b.WriteString("\n")
			}
			t, _ := model.ParseDate(in.Ref.Date)
			b.WriteString(titleStyle.Render(t.Format("Mon Jan 2")) + "\n")
			last = in.Ref.Date
		}
		ev := in.Event
		line := lipgloss.NewStyle().Foreground(lipgloss.Color(ev.Color.Hex())).
			Render(fmt.Sprintf("  %s-%s  %s", ev.StartTime, ev.EndTime, ev.Title))
		if len(ev.Tags) > 0 {
			line += dimStyle.Render("  #" + strings.Join(ev.Tags, " #"))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
