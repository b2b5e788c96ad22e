// Package analysis drives one article through extraction, summarization,
// splitting and recording.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"openlens/internal/extractor"
	"openlens/internal/llm"
	"openlens/internal/memory"
)

// Extractor reduces a URL to article text. Errors are *extractor.Failure.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Summarizer returns the raw model output for an article and optional question.
type Summarizer interface {
	Summarize(ctx context.Context, articleText, question string) (string, error)
}

// Stage is a step of the pipeline, reported to observers as it starts.
type Stage string

const (
	StageExtracting  Stage = "extracting"
	StageSummarizing Stage = "summarizing"
	StageSplitting   Stage = "splitting"
	StageRecording   Stage = "recording"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Observer is told about every stage transition of one Analyze call.
type Observer func(Stage)

const defaultPreviewChars = 1500

// Request is one user action. Analyze trims the question itself, so a
// whitespace-only question counts as no question.
type Request struct {
	URL      string
	Question string
}

// NewRequest trims both fields.
func NewRequest(url, question string) Request {
	return Request{URL: strings.TrimSpace(url), Question: strings.TrimSpace(question)}
}

// Result is what the UI renders for a completed analysis.
type Result struct {
	URL       string `json:"url"`
	Question  string `json:"question,omitempty"`
	Preview   string `json:"preview"`
	Summary   string `json:"summary"`
	Answer    string `json:"answer,omitempty"`
	HasAnswer bool   `json:"has_answer"`
	Raw       string `json:"raw"`
	// Error is set when the summarizer failed or a stage panicked; Raw then
	// carries the same text so it is shown in place of a summary.
	Error    string        `json:"error,omitempty"`
	Sequence int64         `json:"sequence,omitempty"`
	Model    string        `json:"model,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Analyzer runs the pipeline. It holds no per-session state: the memory
// store is passed in by the caller that owns the session.
type Analyzer struct {
	extractor    Extractor
	summarizer   Summarizer
	model        string
	previewChars int
}

// NewAnalyzer wires the pipeline stages.
func NewAnalyzer(ex Extractor, sum Summarizer) *Analyzer {
	a := &Analyzer{extractor: ex, summarizer: sum, previewChars: defaultPreviewChars}
	if c, ok := sum.(*llm.Client); ok {
		a.model = c.Model()
	}
	return a
}

// Analyze extracts, summarizes, splits and records one request.
//
// An extraction failure is returned as a *extractor.Failure with a nil result;
// nothing is summarized or recorded in that case. Every later problem is
// reported through Result.Error and the analysis is still recorded.
func (a *Analyzer) Analyze(ctx context.Context, mem memory.Store, req Request, observers ...Observer) (*Result, error) {
	start := time.Now()
	req.Question = strings.TrimSpace(req.Question)
	notify := func(s Stage) {
		for _, o := range observers {
			o(s)
		}
	}

	notify(StageExtracting)
	text, err := a.extractor.Extract(ctx, req.URL)
	if err != nil {
		var f *extractor.Failure
		if !errors.As(err, &f) {
			f = &extractor.Failure{Kind: extractor.KindError, URL: req.URL, Err: err}
		}
		log.Printf("[Analyzer] Extraction failed for %s: %v", req.URL, f)
		notify(StageFailed)
		return nil, f
	}

	res := &Result{
		URL:      req.URL,
		Question: req.Question,
		Preview:  preview(text, a.previewChars),
		Model:    a.model,
	}
	a.run(ctx, mem, req, text, res, notify)
	res.Duration = time.Since(start)

	notify(StageDone)
	log.Printf("[Analyzer] Done %s in %s (seq=%d, answer=%v, error=%q)",
		req.URL, res.Duration, res.Sequence, res.HasAnswer, res.Error)
	return res, nil
}

// run covers summarizing through recording; a panic in any of them ends up in res.Error.
func (a *Analyzer) run(ctx context.Context, mem memory.Store, req Request, text string, res *Result, notify func(Stage)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Analyzer] Recovered panic for %s: %v", req.URL, r)
			res.Error = fmt.Sprintf("internal error: %v", r)
			if res.Raw == "" {
				res.Raw = res.Error
				res.Summary = res.Error
			}
		}
	}()

	notify(StageSummarizing)
	raw, err := a.summarizer.Summarize(ctx, text, req.Question)
	if err != nil {
		raw = summarizerErrorText(err)
		res.Error = raw
		log.Printf("[Analyzer] Summarizer failed for %s: %v", req.URL, err)
	}
	res.Raw = raw

	notify(StageSplitting)
	split := SplitResponse(raw, req.Question != "")
	res.Summary = split.Summary
	res.Answer = split.Answer
	res.HasAnswer = split.HasAnswer

	notify(StageRecording)
	if mem == nil {
		return
	}
	entry, err := mem.Append(ctx, memory.Entry{URL: req.URL, Question: req.Question, ResultRaw: raw})
	if err != nil {
		log.Printf("[Analyzer] Failed to record %s: %v", req.URL, err)
		if res.Error == "" {
			res.Error = fmt.Sprintf("failed to record analysis: %v", err)
		}
		return
	}
	res.Sequence = entry.Sequence
}

// summarizerErrorText keeps upstream API errors verbatim ("API Error <code>: <body>").
func summarizerErrorText(err error) string {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return fmt.Sprintf("Summarizer error: %v", err)
}

func preview(text string, max int) string {
	r := []rune(text)
	if max <= 0 || len(r) <= max {
		return text
	}
	return string(r[:max]) + "..."
}
