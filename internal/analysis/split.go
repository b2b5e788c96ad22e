package analysis

import (
	"strings"

	"openlens/internal/llm"
)

// Split is the summary/answer view of a raw completion.
type Split struct {
	Summary   string
	Answer    string
	HasAnswer bool
}

// SplitResponse separates raw at the first answer delimiter.
//
// This is a best-effort heuristic: the model is asked to use the delimiter but
// nothing forces it to. Without a delimiter the whole text is the summary.
// Without a question any answer segment is dropped.
func SplitResponse(raw string, questionWasAsked bool) Split {
	before, after, found := strings.Cut(raw, llm.AnswerDelimiter)
	if !found {
		return Split{Summary: strings.TrimSpace(raw)}
	}
	s := Split{Summary: strings.TrimSpace(before)}
	if questionWasAsked {
		s.Answer = strings.TrimSpace(after)
		s.HasAnswer = true
	}
	return s
}
