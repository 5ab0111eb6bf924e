package domain

import "errors"

// Density controls how many questions the pipeline generates per chunk.
type Density string

// Supported density settings.
const (
	DensityLow    Density = "low"
	DensityMedium Density = "medium"
	DensityHigh   Density = "high"
)

// ErrInvalidDensity is returned when a density value is not one of the
// supported settings.
var ErrInvalidDensity = errors.New("invalid card density")

// questionsPerChunk is the enumerated density-to-count table.
var questionsPerChunk = map[Density]int{
	DensityLow:    2,
	DensityMedium: 5,
	DensityHigh:   10,
}

// defaultQuestionsPerChunk applies when a stored job carries an
// unrecognized density value.
const defaultQuestionsPerChunk = 5

// Valid reports whether the density is a supported setting.
func (d Density) Valid() bool {
	_, ok := questionsPerChunk[d]
	return ok
}

// QuestionsPerChunk returns the number of questions to generate for each
// chunk at this density. Unknown values fall back to the medium count.
func (d Density) QuestionsPerChunk() int {
	if n, ok := questionsPerChunk[d]; ok {
		return n
	}
	return defaultQuestionsPerChunk
}
