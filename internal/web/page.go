package web

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	appLog "teamsync/internal/log"
	"teamsync/internal/model"
)

//go:embed templates/calendar.html
var templateFS embed.FS

var calendarTmpl = template.Must(template.ParseFS(templateFS, "templates/calendar.html"))

type pageDay struct {
	Date      string
	Day       int
	InMonth   bool
	Today     bool
	Instances []instanceDTO
}

type pageData struct {
	Title    string
	Product  string
	User     model.User
	Weekdays []string
	Weeks    [][]pageDay
	Prev     string
	Next     string
}

// handleCalendarPage renders the month grid as static HTML. The body
// carries data-ready="true" once rendered so headless captures can wait
// on it.
//
// GET /calendar?year=2024&month=1
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	year, month, ok := s.monthParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "year and month must be a valid calendar month")
		return
	}
	u := userFrom(r)
	instances, _, err := s.monthInstances(r.Context(), u, year, month, listParam(r, "tag"), listParam(r, "user"))
	if err != nil {
		fail(w, r, err)
		return
	}
	byDate := make(map[string][]instanceDTO)
	for _, in := range instances {
		byDate[in.Ref.Date] = append(byDate[in.Ref.Date], toDTO(in))
	}

	today := model.FormatDate(s.now())
	prefix := model.DateOf(year, month, 1)[:7]
	data := pageData{
		Title:    time.Date(year, month, 1, 12, 0, 0, 0, time.UTC).Format("January 2006"),
		Product:  s.cfg.ProductName,
		User:     u,
		Weekdays: []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
		Prev:     monthQuery(year, month-1),
		Next:     monthQuery(year, month+1),
	}
	for _, week := range model.MonthWeeks(year, month, time.Sunday) {
		row := make([]pageDay, 0, len(week))
		for _, date := range week {
			t, _ := model.ParseDate(date)
			row = append(row, pageDay{
				Date:      date,
				Day:       t.Day(),
				InMonth:   date[:7] == prefix,
				Today:     date == today,
				Instances: byDate[date],
			})
		}
		data.Weeks = append(data.Weeks, row)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := calendarTmpl.Execute(w, data); err != nil {
		appLog.Error("calendar page render failed", err)
	}
}

func monthQuery(year int, month time.Month) string {
	t := time.Date(year, month, 1, 12, 0, 0, 0, time.UTC)
	return "?year=" + t.Format("2006") + "&month=" + t.Format("1")
}
