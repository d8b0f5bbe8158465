// Package qa answers questions from retrieved document chunks: it searches the
// vector store, renders a prompt, calls the inference backend and extracts the
// answer from the completion.
package qa

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hyperjump/documaster/internal/answer"
	"github.com/hyperjump/documaster/internal/llm"
	"github.com/hyperjump/documaster/internal/models"
	"github.com/hyperjump/documaster/internal/prompt"
)

// NoEvidenceAnswer is returned when no chunk is close enough to the question.
const NoEvidenceAnswer = "I don't know."

var tracer = otel.Tracer("documaster.qa")

// Searcher finds chunks similar to a query. *vectorstore.Store implements it.
type Searcher interface {
	Search(ctx context.Context, query string, n int, collection string, documentIDs []string) ([]models.ScoredChunk, error)
}

// Service is the QA orchestrator. It is safe for concurrent use.
type Service struct {
	searcher        Searcher
	backend         llm.Backend
	template        prompt.Template
	fallbackMarkers []string
	nResults        int
	collection      string
	options         llm.Options
	logger          *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTemplate replaces the QA prompt. It must take context and question inputs.
func WithTemplate(t prompt.Template) Option {
	return func(s *Service) { s.template = t }
}

// WithFallbackMarkers sets the markers applied after the template's own marker.
func WithFallbackMarkers(markers ...string) Option {
	return func(s *Service) { s.fallbackMarkers = slices.Clone(markers) }
}

// WithNResults sets how many chunks are retrieved. Zero or less defers to the searcher.
func WithNResults(n int) Option {
	return func(s *Service) { s.nResults = n }
}

// WithCollection sets the collection searched when a call does not name one.
func WithCollection(name string) Option {
	return func(s *Service) { s.collection = name }
}

// WithCompletionOptions sets the options passed to every backend call.
func WithCompletionOptions(opts llm.Options) Option {
	return func(s *Service) { s.options = opts.Merge(nil) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a Service using prompt.QA and answer.FallbackMarkers.
func NewService(searcher Searcher, backend llm.Backend, opts ...Option) *Service {
	s := &Service{
		searcher:        searcher,
		backend:         backend,
		template:        prompt.QA,
		fallbackMarkers: slices.Clone(answer.FallbackMarkers),
		options:         llm.Options{},
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer answers question in the default collection.
func (s *Service) Answer(ctx context.Context, question string, documentIDs []string) (*models.QAResult, error) {
	return s.AnswerIn(ctx, question, s.collection, documentIDs)
}

// AnswerIn answers question from chunks of collection, optionally restricted to
// documentIDs. Without supporting chunks it returns NoEvidenceAnswer and does
// not call the backend.
func (s *Service) AnswerIn(ctx context.Context, question, collection string, documentIDs []string) (result *models.QAResult, err error) {
	ctx, span := tracer.Start(ctx, "Service.Answer")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("document_filter", len(documentIDs)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			questionsTotal.WithLabelValues("error").Inc()
		}
	}()

	chunks, err := s.searcher.Search(ctx, question, s.nResults, collection, documentIDs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		s.logger.Debug("no evidence for question", zap.String("collection", collection))
		questionsTotal.WithLabelValues("no_evidence").Inc()
		return &models.QAResult{Answer: NoEvidenceAnswer, Sources: []string{}}, nil
	}

	sources := make([]string, len(chunks))
	lines := make([]string, len(chunks))
	for i, c := range chunks {
		sources[i] = c.Chunk.Text
		lines[i] = "- " + c.Chunk.Text
	}
	rendered, err := s.template.Render(map[string]string{
		prompt.KeyContext:  strings.Join(lines, "\n"),
		prompt.KeyQuestion: question,
	})
	if err != nil {
		return nil, err
	}

	text, err := s.complete(ctx, rendered)
	if err != nil {
		return nil, err
	}
	markers := append([]string{s.template.OutputMarker()}, s.fallbackMarkers...)
	ans := strings.TrimSpace(answer.Chain(text, markers...))

	s.logger.Debug("question answered",
		zap.String("collection", collection),
		zap.Int("sources", len(sources)),
		zap.Int("answer_len", len(ans)))
	questionsTotal.WithLabelValues("answered").Inc()
	return &models.QAResult{Answer: ans, Sources: sources}, nil
}

// complete calls the backend and returns the generated text.
func (s *Service) complete(ctx context.Context, rendered string) (string, error) {
	ctx, span := tracer.Start(ctx, "Service.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("prompt_len", len(rendered))))
	defer span.End()

	start := time.Now()
	resp, err := s.backend.Complete(ctx, rendered, s.options)
	inferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var ie *llm.InferenceError
		var pe *llm.ResponseParsingError
		if errors.As(err, &ie) || errors.As(err, &pe) {
			return "", err
		}
		return "", &llm.InferenceError{Backend: fmt.Sprintf("%T", s.backend), Err: err}
	}
	return llm.GeneratedText(resp)
}

// Evaluate asks the backend to judge answer against reference. A verdict
// containing INCORRECT is false, CORRECT is true, anything else is UNKNOWN.
func (s *Service) Evaluate(ctx context.Context, question, ans, reference string) (*models.Evaluation, error) {
	rendered, err := prompt.Evaluation.Render(map[string]string{
		prompt.KeyQuestion:  question,
		prompt.KeyAnswer:    ans,
		prompt.KeyReference: reference,
	})
	if err != nil {
		return nil, err
	}
	text, err := s.complete(ctx, rendered)
	if err != nil {
		return nil, err
	}
	reasoning := strings.TrimSpace(answer.ExtractAfterMarker(text, prompt.Evaluation.OutputMarker()))
	ev := parseVerdict(reasoning)
	evaluationsTotal.WithLabelValues(ev.Verdict).Inc()
	return ev, nil
}

func parseVerdict(reasoning string) *models.Evaluation {
	upper := strings.ToUpper(reasoning)
	ev := &models.Evaluation{Verdict: models.VerdictUnknown, Reasoning: reasoning}
	switch {
	case strings.Contains(upper, models.VerdictIncorrect):
		ev.Verdict = models.VerdictIncorrect
	case strings.Contains(upper, models.VerdictCorrect):
		ev.Verdict = models.VerdictCorrect
		ev.Correct = true
	}
	return ev
}

// RunEvaluation answers and evaluates every case. Per-case failures are
// recorded in the report; a cancelled context stops the run.
func (s *Service) RunEvaluation(ctx context.Context, cases []models.EvalCase) (*models.EvalReport, error) {
	report := &models.EvalReport{Outcomes: make([]models.EvalOutcome, 0, len(cases)), Total: len(cases)}
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := models.EvalOutcome{Case: c}
		res, err := s.Answer(ctx, c.Question, c.DocumentIDs)
		if err != nil {
			out.Error = err.Error()
			report.Outcomes = append(report.Outcomes, out)
			s.logger.Warn("evaluation case failed", zap.String("question", c.Question), zap.Error(err))
			continue
		}
		out.Result = *res
		ev, err := s.Evaluate(ctx, c.Question, res.Answer, c.Reference)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Evaluation = ev
			if ev.Correct {
				report.Correct++
			}
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	s.logger.Info("evaluation finished",
		zap.Int("total", report.Total),
		zap.Int("correct", report.Correct),
		zap.Float64("accuracy", report.Accuracy()))
	return report, nil
}
