package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/pitabwire/util"

	"github.com/antinvestor/reviewer/internal/diff"
	"github.com/antinvestor/reviewer/internal/llm"
)

// DegradedSummary is the review summary used when the model never
// produced a parseable reply.
const DegradedSummary = "Automated review could not produce structured findings for this revision."

// EngineConfig tunes a single review round trip.
type EngineConfig struct {
	Model       llm.Model
	MaxTokens   int
	Temperature float64

	// MaxPromptChars caps the assembled user prompt. Zero means no cap.
	MaxPromptChars int
}

// Engine turns a set of parsed file diffs into a validated review
// result: build prompt, ask the model, validate the reply. A reply
// that fails schema validation gets exactly one corrective follow-up
// before the engine degrades to an empty result.
type Engine struct {
	client    llm.Client
	prompts   *PromptBuilder
	validator *Validator
	config    EngineConfig
}

// NewEngine creates a review engine backed by the given completion client.
func NewEngine(client llm.Client, cfg EngineConfig) (*Engine, error) {
	pb, err := NewPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("prompt builder: %w", err)
	}

	return &Engine{
		client:    client,
		prompts:   pb,
		validator: NewValidator(),
		config:    cfg,
	}, nil
}

// Review runs one review round trip over the given files.
// The returned Result always carries a disposition; when both model
// replies fail validation the result is degraded (zero findings,
// Degraded set) rather than an error. Errors are reserved for
// completion transport failures.
func (e *Engine) Review(
	ctx context.Context,
	title, description string,
	files []*diff.FileDiff,
) (*Result, error) {
	log := util.Log(ctx)

	userPrompt, err := e.prompts.Build(PromptInput{
		Title:       title,
		Description: description,
		Files:       files,
		MaxChars:    e.config.MaxPromptChars,
	})
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	sentFiles := make(map[string]bool, len(files))
	for _, fd := range files {
		sentFiles[fd.Path] = true
	}

	messages := []llm.Message{
		{Role: "user", Content: userPrompt},
	}

	resp, err := e.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	result, err := e.validator.Validate(ctx, resp.Content, sentFiles)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, ErrSchema) {
		return nil, err
	}

	// One corrective round: replay the bad reply and ask again.
	log.WithError(err).Warn("model reply failed validation, sending corrective prompt")

	messages = append(messages,
		llm.Message{Role: "assistant", Content: resp.Content},
		llm.Message{Role: "user", Content: CorrectivePrompt},
	)

	resp, err = e.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	result, err = e.validator.Validate(ctx, resp.Content, sentFiles)
	if err == nil {
		result.CorrectiveRetry = true
		return result, nil
	}
	if !errors.Is(err, ErrSchema) {
		return nil, err
	}

	log.WithError(err).Warn("corrective reply failed validation, degrading review")

	return &Result{
		Findings:        nil,
		Summary:         DegradedSummary,
		Disposition:     DispositionComment,
		Degraded:        true,
		CorrectiveRetry: true,
	}, nil
}

func (e *Engine) complete(ctx context.Context, messages []llm.Message) (*llm.CompletionResponse, error) {
	resp, err := e.client.Complete(ctx, &llm.CompletionRequest{
		Model:        e.config.Model,
		SystemPrompt: SystemPrompt,
		Messages:     messages,
		MaxTokens:    e.config.MaxTokens,
		Temperature:  e.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	return resp, nil
}
