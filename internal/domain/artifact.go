package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Artifact-specific validation errors
var (
	ErrEmptyArtifactID      = errors.New("artifact ID cannot be empty")
	ErrEmptyArtifactOwnerID = errors.New("artifact owner ID cannot be empty")
	ErrEmptyArtifactJobID   = errors.New("artifact job ID cannot be empty")
	ErrEmptyArtifactName    = errors.New("artifact name cannot be empty")
	ErrEmptyArtifactPath    = errors.New("artifact storage path cannot be empty")
	ErrInvalidCardCount     = errors.New("artifact card count must be positive")
)

// Artifact is the immutable derived output of one successful job run:
// a packaged card deck stored in object storage. An artifact is created
// exactly once and never mutated; a re-executed job produces a new one.
type Artifact struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	JobID       uuid.UUID `json:"job_id"`
	Name        string    `json:"name"`
	CardCount   int       `json:"card_count"`
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewArtifact creates a new Artifact record for a packaged deck.
// Returns an error if validation fails.
func NewArtifact(
	ownerID, jobID uuid.UUID,
	name, storagePath string,
	cardCount int,
	sizeBytes int64,
	tags []string,
) (*Artifact, error) {
	artifact := &Artifact{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		JobID:       jobID,
		Name:        name,
		CardCount:   cardCount,
		StoragePath: storagePath,
		SizeBytes:   sizeBytes,
		Tags:        tags,
		CreatedAt:   time.Now().UTC(),
	}

	if err := artifact.Validate(); err != nil {
		return nil, err
	}

	return artifact, nil
}

// Validate checks if the Artifact has valid data.
func (a *Artifact) Validate() error {
	if a.ID == uuid.Nil {
		return ErrEmptyArtifactID
	}

	if a.OwnerID == uuid.Nil {
		return ErrEmptyArtifactOwnerID
	}

	if a.JobID == uuid.Nil {
		return ErrEmptyArtifactJobID
	}

	if a.Name == "" {
		return ErrEmptyArtifactName
	}

	if a.StoragePath == "" {
		return ErrEmptyArtifactPath
	}

	if a.CardCount < 1 {
		return ErrInvalidCardCount
	}

	return nil
}

// Card is one question/answer unit inside a packaged deck.
// Context is the minimal framing shown with the question; Source points
// back at the chunk of the original document the card was built from.
type Card struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Context     string `json:"context,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Validate checks that the card has the two required sides.
func (c *Card) Validate() error {
	if c.Question == "" {
		return errors.New("card question cannot be empty")
	}
	if c.Answer == "" {
		return errors.New("card answer cannot be empty")
	}
	return nil
}
