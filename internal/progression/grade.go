package progression

import (
	"math"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Grade is the result of grading a submission against a quiz.
type Grade struct {
	Score      int `json:"score"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// GradeQuiz counts the questions whose selected options exactly match the
// correct answers, ignoring order. There is no partial credit.
func GradeQuiz(quiz Quiz, answers Answers) Grade {
	g := Grade{Total: len(quiz.Questions)}
	for i, q := range quiz.Questions {
		if sameSet(answers[i], q.CorrectAnswers) {
			g.Score++
		}
	}
	if g.Total > 0 {
		g.Percentage = int(math.Round(100 * float64(g.Score) / float64(g.Total)))
	}
	return g
}

func sameSet(selected, correct []string) bool {
	a, b := canonical(selected), canonical(correct)
	if len(a) == 0 {
		return false
	}
	return slices.Equal(a, b)
}

// canonical returns a sorted, deduplicated, NFC-normalised copy.
func canonical(opts []string) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		out = append(out, norm.NFC.String(strings.TrimSpace(o)))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
