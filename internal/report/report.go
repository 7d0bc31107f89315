// Package report exports a user's progress as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// Sheet names.
const (
	SheetCourses = "Courses"
	SheetModules = "Modules"
	SheetBadges  = "Badges"
)

var headers = map[string][]any{
	SheetCourses: {"Course", "Learning path", "Level", "Modules", "Modules completed", "Completed", "Mock test score", "Badge", "Created"},
	SheetModules: {"Course", "Module", "Title", "Status", "Quiz attempts", "Quiz score", "Completed"},
	SheetBadges:  {"Course", "Score", "Tier", "Awarded"},
}

// Workbook builds the progress workbook for st. Standalone courses come
// first, then each path's courses in path order. The caller closes the file.
func Workbook(st progression.State) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetCourses); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetModules, SheetBadges} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &writer{f: f, rows: map[string]int{}}
	for _, sheet := range []string{SheetCourses, SheetModules, SheetBadges} {
		w.row(sheet, headers[sheet]...)
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			w.err = err
		}
	}

	for _, c := range st.Courses {
		w.course(c, "")
	}
	for _, p := range st.Paths {
		for _, c := range p.Courses {
			w.course(c, p.Title)
		}
	}

	if w.err != nil {
		f.Close()
		return nil, fmt.Errorf("build workbook: %w", w.err)
	}
	return f, nil
}

// Write streams the workbook for st to out.
func Write(out io.Writer, st progression.State) error {
	f, err := Workbook(st)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// writer appends rows and keeps the first error.
type writer struct {
	f    *excelize.File
	rows map[string]int
	err  error
}

func (w *writer) row(sheet string, values ...any) {
	if w.err != nil {
		return
	}
	w.rows[sheet]++
	cell, err := excelize.CoordinatesToCellName(1, w.rows[sheet])
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(sheet, cell, &values)
}

func (w *writer) course(c progression.Course, pathTitle string) {
	done := 0
	for _, m := range c.Modules {
		if m.IsCompleted {
			done++
		}
	}
	badge := ""
	if c.Badge != nil {
		badge = c.Badge.Tier()
	}
	w.row(SheetCourses,
		c.Title, pathTitle, string(c.Level), len(c.Modules), done,
		yesNo(c.IsCompleted), optional(c.MockTestScore), badge, date(c.CreatedAt),
	)

	for i, m := range c.Modules {
		w.row(SheetModules,
			c.Title, i+1, m.Title, status(c, i), m.QuizAttempts, optional(m.QuizScore), yesNo(m.IsCompleted),
		)
	}

	if c.Badge != nil {
		w.row(SheetBadges, c.Badge.CourseTitle, c.Badge.Score, c.Badge.Tier(), date(c.Badge.DateAwarded))
	}
}

// status describes a module from the learner's side: locked modules are
// behind the unlock frontier regardless of generation state.
func status(c progression.Course, i int) string {
	m := c.Modules[i]
	switch {
	case m.IsCompleted:
		return "completed"
	case !c.ModuleAccessible(i):
		return "locked"
	case m.GenerationState == progression.StateLocked:
		return "not generated"
	default:
		return string(m.GenerationState)
	}
}

func optional(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}
