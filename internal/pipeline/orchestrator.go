// Package pipeline runs the eight ordered stages that turn a source
// document into a packaged card deck:
//
//	load -> chunk -> extract -> refine -> tag -> question -> answer -> assemble
//
// Stage execution is stateful over one transient State per run. A failure
// in any stage aborts the whole run; nothing is retained for a later
// attempt. Per-chunk and per-question calls fan out under a bounded worker
// group with results reassembled in source order, so output card order is
// deterministic for a given input and parameter set.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cardforge/cardforge-api/internal/anki"
	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/generation"
)

// ErrCancelled is returned when a run stops because the job was cancelled
// externally. Checked cooperatively between stages.
var ErrCancelled = errors.New("run cancelled")

// Progress checkpoints reported to the caller at stage boundaries.
const (
	progressGenerating = 20
	progressQADone     = 80
	progressAssembled  = 90
)

// ProgressFunc receives progress percentages as the run advances.
type ProgressFunc func(percent int)

// CancelCheck is polled between stages; returning true stops the run.
type CancelCheck func(ctx context.Context) bool

// Config tunes one Orchestrator instance.
type Config struct {
	ChunkSize    int
	ChunkOverlap int

	// Concurrency bounds the fan-out of generative-service calls.
	// Values below 1 run the stages sequentially.
	Concurrency int
}

// Orchestrator sequences the pipeline stages over one State per run.
type Orchestrator struct {
	adapter     generation.Adapter
	chunker     *Chunker
	concurrency int
	logger      *slog.Logger
}

// New creates an Orchestrator calling the given generative-service adapter.
func New(adapter generation.Adapter, cfg Config, logger *slog.Logger) *Orchestrator {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		adapter:     adapter,
		chunker:     NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run executes stages 1-8 for the given job over the fetched source bytes.
// progress and cancelled may be nil.
func (o *Orchestrator) Run(
	ctx context.Context,
	job *domain.Job,
	source []byte,
	progress ProgressFunc,
	cancelled CancelCheck,
) (*Result, error) {
	report := func(pct int) {
		if progress != nil {
			progress(pct)
		}
	}
	checkpoint := func() error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run aborted: %w", err)
		}
		if cancelled != nil && cancelled(ctx) {
			return ErrCancelled
		}
		return nil
	}

	logger := o.logger.With("job_id", job.ID)
	state := &State{}

	// Stage 1: load pages.
	pages, err := LoadPages(source, job.SourceFilename, job.PageStart, job.PageEnd)
	if err != nil {
		return nil, fmt.Errorf("load stage: %w", err)
	}
	state.Pages = pages
	logger.Info("pages loaded", "num_pages", len(pages))

	if err := checkpoint(); err != nil {
		return nil, err
	}

	// Stage 2: chunk page text.
	state.Chunks = o.chunker.ChunkPages(state.Pages)
	if len(state.Chunks) == 0 {
		return nil, fmt.Errorf("chunk stage: %w: no chunks produced", domain.ErrSource)
	}
	logger.Info("chunks created", "num_chunks", len(state.Chunks))

	if err := checkpoint(); err != nil {
		return nil, err
	}
	report(progressGenerating)

	// Stage 3: per-chunk topic extraction, order preserved.
	if err := o.extractTopics(ctx, state); err != nil {
		return nil, fmt.Errorf("topic extraction stage: %w", wrapUpstream(err))
	}
	logger.Info("topics extracted", "num_chunks", len(state.Extracted))

	if err := checkpoint(); err != nil {
		return nil, err
	}

	// Stage 4: one refinement call over all extractions.
	title := documentTitle(job.SourceFilename)
	refined, err := o.adapter.RefineTopics(ctx, state.Extracted, title, job.Subject)
	if err != nil {
		return nil, fmt.Errorf("topic refinement stage: %w", wrapUpstream(err))
	}
	if refined == nil {
		return nil, fmt.Errorf("topic refinement stage: %w: adapter returned no topics",
			domain.ErrUpstreamService)
	}
	state.Refined = refined
	logger.Info("topics refined", "num_topics", len(refined.MainTopics))

	if err := checkpoint(); err != nil {
		return nil, err
	}

	// Stage 5: tag generation, normalized and merged with custom tags.
	tagSet, err := o.adapter.GenerateTags(ctx, generation.TagRequest{
		Topics:        refined,
		DocumentTitle: title,
		Subject:       job.Subject,
		Chapter:       job.Chapter,
		CustomTags:    job.CustomTags,
	})
	if err != nil {
		return nil, fmt.Errorf("tag generation stage: %w", wrapUpstream(err))
	}
	if tagSet == nil {
		return nil, fmt.Errorf("tag generation stage: %w: adapter returned no tags",
			domain.ErrUpstreamService)
	}
	state.Tags = NormalizeTags(tagSet.Tags, tagSet.DifficultyTags, job.CustomTags)
	logger.Info("tags generated", "num_tags", len(state.Tags))

	if err := checkpoint(); err != nil {
		return nil, err
	}

	// Stages 6 and 7: questions then answers, grouped per chunk.
	if err := o.generateQA(ctx, state, job.Density); err != nil {
		return nil, err
	}
	logger.Info("qa units accumulated", "num_cards", len(state.QAUnits))
	report(progressQADone)

	if err := checkpoint(); err != nil {
		return nil, err
	}

	// Stage 8: deterministic artifact assembly.
	deckName := job.DeckName()
	cards := assembleCards(state.QAUnits)
	deckBytes, err := anki.BuildPackage(deckName, cards, state.Tags)
	if err != nil {
		return nil, fmt.Errorf("assembly stage: %w", err)
	}
	report(progressAssembled)

	return &Result{
		DeckName:  deckName,
		Cards:     cards,
		Tags:      state.Tags,
		DeckBytes: deckBytes,
		NumPages:  len(state.Pages),
		NumChunks: len(state.Chunks),
		NumTopics: len(refined.MainTopics),
	}, nil
}

// extractTopics runs stage 3 for every chunk under the bounded worker
// group. Results land in a slot per chunk index, so order is stable no
// matter which call finishes first.
func (o *Orchestrator) extractTopics(ctx context.Context, state *State) error {
	results := make([]generation.ChunkTopics, len(state.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, chunk := range state.Chunks {
		g.Go(func() error {
			topics, err := o.adapter.ExtractTopics(gctx, chunk.Text, chunk.Index, len(state.Chunks))
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}
			if topics == nil {
				return fmt.Errorf("chunk %d: adapter returned no topics", chunk.Index)
			}
			topics.ChunkIndex = chunk.Index
			results[chunk.Index] = *topics
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	state.Extracted = results
	return nil
}

// generateQA runs stages 6 and 7 per chunk: N questions for the chunk,
// then one answer call per question against the full chunk text. Units
// are reassembled keyed by chunk index and appended in question order.
func (o *Orchestrator) generateQA(ctx context.Context, state *State, density domain.Density) error {
	numQuestions := density.QuestionsPerChunk()
	perChunk := make([][]QAUnit, len(state.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, chunk := range state.Chunks {
		g.Go(func() error {
			questions, err := o.adapter.GenerateQuestions(gctx, generation.QuestionRequest{
				ChunkText:    chunk.Text,
				ChunkIndex:   chunk.Index,
				Topics:       state.Refined,
				NumQuestions: numQuestions,
			})
			if err != nil {
				return fmt.Errorf("question generation stage: chunk %d: %w",
					chunk.Index, wrapUpstream(err))
			}

			units := make([]QAUnit, 0, len(questions))
			for qi, question := range questions {
				answer, err := o.adapter.AnswerQuestion(gctx, generation.AnswerRequest{
					Question:  question.Question,
					Context:   question.Context,
					ChunkText: chunk.Text,
				})
				if err != nil {
					return fmt.Errorf("answer generation stage: chunk %d question %d: %w",
						chunk.Index, qi, wrapUpstream(err))
				}
				if answer == nil {
					return fmt.Errorf("answer generation stage: %w: chunk %d question %d: empty response",
						domain.ErrUpstreamService, chunk.Index, qi)
				}

				difficulty := answer.Difficulty
				if difficulty == "" {
					difficulty = question.Difficulty
				}
				units = append(units, QAUnit{
					ChunkIndex:  chunk.Index,
					Question:    question.Question,
					Context:     question.Context,
					SourceText:  chunk.Text,
					Answer:      answer.Answer,
					Explanation: answer.Explanation,
					Difficulty:  difficulty,
					Source:      fmt.Sprintf("page %d", chunk.PageNumber),
				})
			}
			perChunk[chunk.Index] = units
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, units := range perChunk {
		state.QAUnits = append(state.QAUnits, units...)
	}
	return nil
}

// assembleCards maps accumulated QA units onto deck cards, one per unit,
// preserving order.
func assembleCards(units []QAUnit) []domain.Card {
	cards := make([]domain.Card, 0, len(units))
	for _, unit := range units {
		cards = append(cards, domain.Card{
			Question:    unit.Question,
			Answer:      unit.Answer,
			Context:     unit.Context,
			Explanation: unit.Explanation,
			Difficulty:  unit.Difficulty,
			Source:      unit.Source,
		})
	}
	return cards
}

// documentTitle derives a human-readable title from the source filename.
func documentTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// wrapUpstream classifies adapter failures under the upstream-service
// sentinel unless they already carry a domain classification. Context
// errors pass through untouched so the caller can tell a deadline kill
// from an upstream fault.
func wrapUpstream(err error) error {
	if errors.Is(err, domain.ErrUpstreamService) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s", domain.ErrUpstreamService, err)
}
