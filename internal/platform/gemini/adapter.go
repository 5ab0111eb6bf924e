// Package gemini implements the generation.Adapter interface using Google's
// Gemini API. Every call requests a JSON response, validates it against a
// schema, and retries transient transport failures with exponential backoff.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/cardforge/cardforge-api/internal/config"
	"github.com/cardforge/cardforge-api/internal/generation"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Generation temperature. Low enough for consistent structured output,
// high enough to avoid degenerate repetition across chunks.
const generationTemperature float32 = 0.4

// Adapter is the Gemini implementation of generation.Adapter.
// The API client is scoped to this value; nothing reads credentials from
// process globals after construction.
type Adapter struct {
	logger *slog.Logger
	config config.LLMConfig
	client *genai.Client
	model  string
}

// NewAdapter creates an Adapter with the provided configuration.
func NewAdapter(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Adapter, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Adapter{
		logger: logger.With(slog.String("component", "gemini_adapter")),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Ensure Adapter implements generation.Adapter interface
var _ generation.Adapter = (*Adapter)(nil)

// ExtractTopics implements generation.Adapter.ExtractTopics
func (a *Adapter) ExtractTopics(
	ctx context.Context,
	chunkText string,
	chunkIndex, totalChunks int,
) (*generation.ChunkTopics, error) {
	prompt, err := renderPrompt(topicsPrompt, map[string]any{
		"ChunkText":   chunkText,
		"ChunkNumber": chunkIndex + 1,
		"TotalChunks": totalChunks,
	})
	if err != nil {
		return nil, err
	}

	var topics generation.ChunkTopics
	if err := a.generate(ctx, "extract_topics", prompt, compiledTopicsSchema, &topics); err != nil {
		return nil, err
	}
	topics.ChunkIndex = chunkIndex
	return &topics, nil
}

// RefineTopics implements generation.Adapter.RefineTopics
func (a *Adapter) RefineTopics(
	ctx context.Context,
	extracted []generation.ChunkTopics,
	documentTitle, subject string,
) (*generation.RefinedTopics, error) {
	if len(extracted) == 0 {
		return nil, fmt.Errorf("%w: no extracted topics to refine", generation.ErrInvalidResponse)
	}

	prompt, err := renderPrompt(refinePrompt, map[string]any{
		"Sections":      extracted,
		"DocumentTitle": documentTitle,
		"Subject":       subject,
	})
	if err != nil {
		return nil, err
	}

	var refined generation.RefinedTopics
	if err := a.generate(ctx, "refine_topics", prompt, compiledRefinedSchema, &refined); err != nil {
		return nil, err
	}
	return &refined, nil
}

// GenerateTags implements generation.Adapter.GenerateTags
func (a *Adapter) GenerateTags(ctx context.Context, req generation.TagRequest) (*generation.TagSet, error) {
	prompt, err := renderPrompt(tagsPrompt, map[string]any{
		"DocumentTitle": req.DocumentTitle,
		"Subject":       req.Subject,
		"Chapter":       req.Chapter,
		"MainTopics":    req.Topics.MainTopics,
		"CustomTags":    req.CustomTags,
	})
	if err != nil {
		return nil, err
	}

	var tags generation.TagSet
	if err := a.generate(ctx, "generate_tags", prompt, compiledTagsSchema, &tags); err != nil {
		return nil, err
	}
	return &tags, nil
}

// GenerateQuestions implements generation.Adapter.GenerateQuestions
func (a *Adapter) GenerateQuestions(
	ctx context.Context,
	req generation.QuestionRequest,
) ([]generation.Question, error) {
	prompt, err := renderPrompt(questionsPrompt, map[string]any{
		"ChunkText":    req.ChunkText,
		"MainTopics":   req.Topics.MainTopics,
		"NumQuestions": req.NumQuestions,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Questions []generation.Question `json:"questions"`
	}
	if err := a.generate(ctx, "generate_questions", prompt, compiledQuestionsSchema, &parsed); err != nil {
		return nil, err
	}
	return parsed.Questions, nil
}

// AnswerQuestion implements generation.Adapter.AnswerQuestion
func (a *Adapter) AnswerQuestion(
	ctx context.Context,
	req generation.AnswerRequest,
) (*generation.Answer, error) {
	prompt, err := renderPrompt(answerPrompt, map[string]any{
		"Question":  req.Question,
		"Context":   req.Context,
		"ChunkText": req.ChunkText,
	})
	if err != nil {
		return nil, err
	}

	var answer generation.Answer
	if err := a.generate(ctx, "answer_question", prompt, compiledAnswerSchema, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// generate makes one logical model call with retries, validates the JSON
// response against the schema, and unmarshals it into out.
func (a *Adapter) generate(
	ctx context.Context,
	operation, prompt string,
	schema *jsonschema.Schema,
	out any,
) error {
	text, err := a.callWithRetry(ctx, operation, prompt)
	if err != nil {
		return err
	}

	raw := []byte(text)
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("%w: %s returned malformed JSON: %v",
			generation.ErrInvalidResponse, operation, err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %s response does not match schema: %v",
			generation.ErrInvalidResponse, operation, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s response: %v",
			generation.ErrInvalidResponse, operation, err)
	}
	return nil
}

// callWithRetry makes the model call with exponential backoff and jitter.
// Transport failures retry up to the configured budget; blocked content
// and empty responses are permanent and fail immediately.
func (a *Adapter) callWithRetry(ctx context.Context, operation, prompt string) (string, error) {
	maxRetries := a.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	baseDelaySeconds := a.config.RetryDelaySeconds
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		a.logger.DebugContext(ctx, "calling gemini",
			"operation", operation,
			"attempt", attempt+1,
			"max_attempts", maxRetries+1)

		resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt),
			&genai.GenerateContentConfig{
				ResponseMIMEType: "application/json",
				Temperature:      genai.Ptr[float32](generationTemperature),
			})

		switch {
		case err == nil && len(resp.Candidates) == 0:
			return "", fmt.Errorf("%w: %s: no content generated",
				generation.ErrInvalidResponse, operation)
		case err == nil && resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
			return "", fmt.Errorf("%w: %s: content blocked by safety filters",
				generation.ErrContentBlocked, operation)
		case err == nil:
			text := resp.Text()
			if text == "" {
				return "", fmt.Errorf("%w: %s: empty response text",
					generation.ErrInvalidResponse, operation)
			}
			return text, nil
		}

		a.logger.WarnContext(ctx, "gemini call failed",
			"operation", operation,
			"attempt", attempt+1,
			"error", err)

		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: %s: exceeded maximum retry attempts (%d): %v",
				generation.ErrTransientFailure, operation, maxRetries, err)
		}

		// delay = baseDelay * 2^attempt * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %v",
				generation.ErrTransientFailure, operation, ctx.Err())
		}
	}
}

// renderPrompt executes one prompt template over its data.
func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
