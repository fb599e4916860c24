package soap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/physioflow/internal/observability/metrics"
	"github.com/wolfman30/physioflow/pkg/logging"
)

var soapTracer = otel.Tracer("physio.internal.soap")

const soapExtractionPrompt = `You are a clinical documentation assistant for a physiotherapy practice.
Write a SOAP note from the consultation transcript and the clinician's notes.
Respond with a single JSON object and nothing else, using exactly these keys:
"subjective", "objective", "assessment", "plan". Each value is plain text.
Only use information present in the input. Leave a field as an empty string when nothing supports it.`

const soapRevisionPrompt = `You are a clinical documentation assistant for a physiotherapy practice.
You are revising an existing SOAP note. Apply the clinician's instruction and keep
every other part of the note as it is. The transcript and notes are context only.
Respond with a single JSON object and nothing else, using exactly these keys:
"subjective", "objective", "assessment", "plan".`

const narrativePrompt = `You write short summaries of physiotherapy visits for patients.
Write 2-3 warm, plain-language sentences describing what was found and what the
patient should do next, mentioning the prescribed exercises by name where helpful.
Avoid clinical jargon. Respond with plain text only.`

const (
	defaultTimeout     = 45 * time.Second
	soapMaxTokens      = 1200
	narrativeMaxTokens = 300
)

// Summarizer is the boundary to the text-generation provider.
type Summarizer struct {
	client  LLMClient
	logger  *logging.Logger
	metrics *metrics.WorkflowMetrics
	timeout time.Duration
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithMetrics records AI call outcomes.
func WithMetrics(m *metrics.WorkflowMetrics) Option {
	return func(s *Summarizer) { s.metrics = m }
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(s *Summarizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewSummarizer(client LLMClient, logger *logging.Logger, opts ...Option) *Summarizer {
	if client == nil {
		panic("soap: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Summarizer{client: client, logger: logger, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSOAP produces a new four-field note. Provider failures come back
// classified (ErrRateLimited, ErrQuotaExceeded) with the cause preserved.
func (s *Summarizer) GenerateSOAP(ctx context.Context, req Request) (Summary, error) {
	ctx, span := soapTracer.Start(ctx, "soap.generate")
	defer span.End()

	transcript, notes := req.grounding()
	_, revision := req.(Revision)
	span.SetAttributes(attribute.Bool("physio.soap.revision", revision))

	if !revision && strings.TrimSpace(transcript) == "" && strings.TrimSpace(notes) == "" {
		return Summary{}, ErrEmptyInput
	}

	system := soapExtractionPrompt
	user := formatConsultation(transcript, notes)
	if rev, ok := req.(Revision); ok {
		system = soapRevisionPrompt
		current, _ := json.Marshal(rev.CurrentSummary)
		user = fmt.Sprintf("Current note:\n%s\n\nInstruction:\n%s\n\n%s", current, rev.Instruction(), user)
	}

	text, err := s.complete(ctx, "soap", LLMRequest{
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: user}},
		MaxTokens:   soapMaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		span.RecordError(err)
		return Summary{}, err
	}

	summary, err := parseSummary(text)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("soap: unparseable model output", "error", err, "length", len(text))
		return Summary{}, err
	}
	return summary, nil
}

// NarrativeSummary writes the short patient-facing overview attached to the
// final note. Callers treat failure as non-fatal.
func (s *Summarizer) NarrativeSummary(ctx context.Context, summary Summary, exercises []NarrativeExercise) (string, error) {
	ctx, span := soapTracer.Start(ctx, "soap.narrative")
	defer span.End()

	var b strings.Builder
	fmt.Fprintf(&b, "Subjective: %s\nObjective: %s\nAssessment: %s\nPlan: %s\n",
		summary.Subjective, summary.Objective, summary.Assessment, summary.Plan)
	if len(exercises) > 0 {
		b.WriteString("\nExercises:\n")
		for _, ex := range exercises {
			fmt.Fprintf(&b, "- %s", ex.Name)
			if ex.Dosage != "" {
				fmt.Fprintf(&b, " (%s)", ex.Dosage)
			}
			b.WriteString("\n")
		}
	}

	text, err := s.complete(ctx, "narrative", LLMRequest{
		System:      []string{narrativePrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: b.String()}},
		MaxTokens:   narrativeMaxTokens,
		Temperature: 0.4,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if text == "" {
		return "", ErrMalformedResponse
	}
	return text, nil
}

func (s *Summarizer) complete(ctx context.Context, kind string, req LLMRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Complete(ctx, req)
	err = classify(err)
	s.metrics.ObserveAICall(kind, Kind(err), time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("soap: completion failed", "kind", kind, "error_kind", Kind(err), "error", err)
		return "", fmt.Errorf("soap: %s completion: %w", kind, err)
	}
	s.logger.Debug("soap: completion finished",
		"kind", kind,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return strings.TrimSpace(resp.Text), nil
}

func formatConsultation(transcript, notes string) string {
	transcript = strings.TrimSpace(transcript)
	notes = strings.TrimSpace(notes)
	if transcript == "" {
		transcript = "(none)"
	}
	if notes == "" {
		notes = "(none)"
	}
	return fmt.Sprintf("Transcript:\n%s\n\nClinician notes:\n%s", transcript, notes)
}

// parseSummary accepts bare JSON or JSON wrapped in prose / markdown fences.
func parseSummary(text string) (Summary, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Summary{}, ErrMalformedResponse
	}

	var out Summary
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out.Subjective = strings.TrimSpace(out.Subjective)
	out.Objective = strings.TrimSpace(out.Objective)
	out.Assessment = strings.TrimSpace(out.Assessment)
	out.Plan = strings.TrimSpace(out.Plan)
	if out.IsEmpty() {
		return Summary{}, ErrMalformedResponse
	}
	return out, nil
}
