package generation

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

var errInvalidPayload = errors.New("invalid payload")

// schemas compiles the response schema of every structured kind.
func loadSchemas() (map[string]*gojsonschema.Schema, error) {
	out := make(map[string]*gojsonschema.Schema)
	for _, kind := range []string{KindCourseOutline, KindPathOutline, KindModuleContent, KindMockTest} {
		data, err := schemaFiles.ReadFile("schemas/" + kind + ".json")
		if err != nil {
			return nil, fmt.Errorf("reading %s schema: %w", kind, err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compiling %s schema: %w", kind, err)
		}
		out[kind] = s
	}
	return out, nil
}

// validate checks doc against schema and reports every violation at once.
func validate(schema *gojsonschema.Schema, doc []byte) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidPayload, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", errInvalidPayload, strings.Join(msgs, "; "))
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")

// stripFences removes a Markdown code fence wrapped around the whole reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// checkQuestions enforces what the schema cannot: correct answers come from
// the options, and a single-select question has exactly one of them.
func checkQuestions(qs []progression.Question) error {
	for i, q := range qs {
		opts := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			opts[o] = true
		}
		for _, a := range q.CorrectAnswers {
			if !opts[a] {
				return fmt.Errorf("%w: question %d: correct answer %q is not an option", errInvalidPayload, i, a)
			}
		}
		if q.Type == progression.SingleSelect && len(q.CorrectAnswers) != 1 {
			return fmt.Errorf("%w: question %d: single_select needs exactly one correct answer, got %d",
				errInvalidPayload, i, len(q.CorrectAnswers))
		}
	}
	return nil
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) (string, bool) {
	if n <= 0 {
		return s, false
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
