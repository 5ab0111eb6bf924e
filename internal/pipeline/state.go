package pipeline

import (
	"github.com/cardforge/cardforge-api/internal/domain"
	"github.com/cardforge/cardforge-api/internal/generation"
)

// State is the transient working set of one pipeline run. It is built up
// stage by stage and discarded when the run ends, successfully or not:
// nothing in it is persisted or reused by a later attempt.
type State struct {
	Pages     []Page
	Chunks    []Chunk
	Extracted []generation.ChunkTopics
	Refined   *generation.RefinedTopics
	Tags      []string
	QAUnits   []QAUnit
}

// QAUnit is one accumulated question/answer unit, tied back to the chunk
// it was generated from.
type QAUnit struct {
	ChunkIndex  int
	Question    string
	Context     string
	SourceText  string
	Answer      string
	Explanation string
	Difficulty  string
	Source      string
}

// Result is what a successful run hands to the caller: the assembled cards,
// the packaged deck bytes, and run statistics.
type Result struct {
	DeckName  string
	Cards     []domain.Card
	Tags      []string
	DeckBytes []byte
	NumPages  int
	NumChunks int
	NumTopics int
}
