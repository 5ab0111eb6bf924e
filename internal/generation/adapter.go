// Package generation defines the boundary between the pipeline core and the
// external generative service, following the hexagonal architecture pattern.
// The pipeline depends only on the Adapter interface; the concrete Gemini
// implementation lives in internal/platform/gemini.
package generation

import "context"

// ChunkTopics is the structured result of topic extraction over one chunk.
type ChunkTopics struct {
	ChunkIndex int       `json:"chunk_index"`
	Topics     []string  `json:"topics"`
	Concepts   []Concept `json:"concepts,omitempty"`
	KeyTerms   []string  `json:"key_terms,omitempty"`
}

// Concept is a named concept with a coarse importance marker.
type Concept struct {
	Name       string `json:"name"`
	Importance string `json:"importance,omitempty"`
}

// RefinedTopics is the consolidated topic set produced from all per-chunk
// extractions, typically reduced to 5-15 main topics with a shallow hierarchy.
type RefinedTopics struct {
	MainTopics  []string            `json:"main_topics"`
	Subtopics   map[string][]string `json:"subtopics,omitempty"`
	KeyConcepts []string            `json:"key_concepts,omitempty"`
}

// TagRequest carries the inputs of the tag generation stage.
type TagRequest struct {
	Topics        *RefinedTopics
	DocumentTitle string
	Subject       string
	Chapter       string
	CustomTags    []string
}

// TagSet is the normalized tag output: lowercase, "::" as the hierarchy
// separator, custom tags merged in.
type TagSet struct {
	Tags           []string `json:"tags"`
	DifficultyTags []string `json:"difficulty_tags,omitempty"`
}

// QuestionRequest carries the inputs of the question generation stage for
// one chunk.
type QuestionRequest struct {
	ChunkText    string
	ChunkIndex   int
	Topics       *RefinedTopics
	NumQuestions int
}

// Question is one generated question with its minimal context and an
// assigned difficulty.
type Question struct {
	Question   string `json:"question"`
	Context    string `json:"context,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// AnswerRequest carries the inputs of the answer generation stage for one
// question: the question, its minimal context, and the full source chunk.
type AnswerRequest struct {
	Question  string
	Context   string
	ChunkText string
}

// Answer is the generated answer with an optional explanation and a
// difficulty rating.
type Answer struct {
	Answer      string `json:"answer"`
	Explanation string `json:"explanation,omitempty"`
	Difficulty  string `json:"difficulty_rating,omitempty"`
}

// Adapter is the call contract for the external generative service.
// Implementations must surface malformed or non-conforming responses as
// errors (see ErrInvalidResponse) rather than returning partial results.
// Version: 1.0
type Adapter interface {
	// ExtractTopics produces candidate topics/concepts/key terms for one
	// chunk, independently of every other chunk.
	ExtractTopics(ctx context.Context, chunkText string, chunkIndex, totalChunks int) (*ChunkTopics, error)

	// RefineTopics merges all per-chunk extractions into a consolidated
	// topic set using the document title and subject for context.
	RefineTopics(ctx context.Context, extracted []ChunkTopics, documentTitle, subject string) (*RefinedTopics, error)

	// GenerateTags produces the normalized tag set for the deck.
	GenerateTags(ctx context.Context, req TagRequest) (*TagSet, error)

	// GenerateQuestions produces req.NumQuestions question/context pairs
	// for one chunk.
	GenerateQuestions(ctx context.Context, req QuestionRequest) ([]Question, error)

	// AnswerQuestion produces the answer for one question, grounded in the
	// full text of the chunk it came from.
	AnswerQuestion(ctx context.Context, req AnswerRequest) (*Answer, error)
}
