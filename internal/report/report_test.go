package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/report"
)

func passedCourse(t *testing.T) progression.State {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	quiz := progression.Quiz{Title: "Q", Questions: []progression.Question{{
		Text: "1+1", Type: progression.SingleSelect, Options: []string{"1", "2"}, CorrectAnswers: []string{"2"},
	}}}

	c := progression.NewCourse("c1", progression.CourseOutline{
		Title:   "Arithmetic",
		Modules: []progression.ModuleOutline{{Title: "Adding"}, {Title: "Subtracting"}},
	}, progression.LevelBeginner, now)
	st := progression.AddCourse(progression.Empty(), c)

	for i := range 2 {
		st = progression.StartModuleGeneration(st, "c1", i)
		st = progression.CompleteModuleGeneration(st, "c1", i, progression.ModuleContent{Content: "x", Quiz: quiz})
		st, _ = progression.SubmitModuleQuiz(st, "c1", i, progression.Answers{0: {"2"}})
	}
	st = progression.CompleteMockTestGeneration(progression.StartMockTestGeneration(st, "c1"), "c1", quiz)
	st, _ = progression.SubmitMockTest(st, "c1", progression.Answers{0: {"2"}}, now)

	path := progression.NewPath("p1", progression.PathOutline{
		Title:   "Numbers",
		Courses: []progression.CourseOutline{{Title: "Fractions", Modules: []progression.ModuleOutline{{Title: "Halves"}, {Title: "Thirds"}}}},
	}, progression.LevelBeginner, now, func() string { return "pc1" })
	return progression.AddPath(st, path)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Write(&buf, passedCourse(t)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	courses, err := f.GetRows(report.SheetCourses)
	if err != nil {
		t.Fatalf("GetRows(Courses) error = %v", err)
	}
	if len(courses) != 3 {
		t.Fatalf("Courses rows = %d, want header + 2", len(courses))
	}
	if got := courses[1]; got[0] != "Arithmetic" || got[4] != "2" || got[5] != "yes" || got[6] != "100" || got[7] != "Gold" {
		t.Errorf("standalone course row = %v", got)
	}
	if got := courses[2]; got[0] != "Fractions" || got[1] != "Numbers" || got[5] != "no" {
		t.Errorf("path course row = %v", got)
	}

	modules, err := f.GetRows(report.SheetModules)
	if err != nil {
		t.Fatalf("GetRows(Modules) error = %v", err)
	}
	if len(modules) != 5 {
		t.Fatalf("Modules rows = %d, want header + 4", len(modules))
	}
	wantStatus := []string{"completed", "completed", "not generated", "locked"}
	for i, want := range wantStatus {
		if got := modules[i+1][3]; got != want {
			t.Errorf("module row %d status = %q, want %q", i+1, got, want)
		}
	}

	badges, err := f.GetRows(report.SheetBadges)
	if err != nil {
		t.Fatalf("GetRows(Badges) error = %v", err)
	}
	if len(badges) != 2 || badges[1][0] != "Arithmetic" || badges[1][2] != "Gold" || badges[1][3] != "2026-03-01" {
		t.Errorf("Badges rows = %v", badges)
	}
}

func TestWorkbook_Empty(t *testing.T) {
	f, err := report.Workbook(progression.Empty())
	if err != nil {
		t.Fatalf("Workbook() error = %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{report.SheetCourses, report.SheetModules, report.SheetBadges} {
		rows, err := f.GetRows(sheet)
		if err != nil {
			t.Fatalf("GetRows(%s) error = %v", sheet, err)
		}
		if len(rows) != 1 {
			t.Errorf("%s rows = %d, want header only", sheet, len(rows))
		}
	}
}
