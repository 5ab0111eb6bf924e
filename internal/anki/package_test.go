package anki

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardforge/cardforge-api/internal/domain"
)

func sampleCards() []domain.Card {
	return []domain.Card{
		{
			Question:    "What organelle produces ATP?",
			Answer:      "The mitochondrion.",
			Context:     "Cellular respiration",
			Explanation: "Oxidative phosphorylation happens on the inner membrane.",
			Difficulty:  "easy",
			Source:      "page 2",
		},
		{
			Question:   "What is the cell membrane made of?",
			Answer:     "A phospholipid bilayer with embedded proteins.",
			Difficulty: "medium",
			Source:     "page 1",
		},
	}
}

func TestBuildPackage(t *testing.T) {
	t.Parallel()

	data, err := BuildPackage("Cell Biology", sampleCards(), []string{"biology", "cells"})
	require.NoError(t, err)
	assert.Greater(t, len(data), 1000, "package should contain a populated database")

	// The package is a zip holding the collection database and a media map.
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, file := range reader.File {
		names[file.Name] = true
	}
	assert.True(t, names["collection.anki2"])
	assert.True(t, names["media"])
}

func TestBuildPackage_Deterministic(t *testing.T) {
	t.Parallel()

	cards := sampleCards()

	first, err := BuildPackage("Deck", cards, []string{"tag"})
	require.NoError(t, err)
	second, err := BuildPackage("Deck", cards, []string{"tag"})
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical input must produce identical packages")
}

func TestBuildPackage_Validation(t *testing.T) {
	t.Parallel()

	_, err := BuildPackage("Deck", nil, nil)
	assert.Error(t, err, "no cards")

	_, err = BuildPackage("", sampleCards(), nil)
	assert.Error(t, err, "empty deck name")

	_, err = BuildPackage("Deck", []domain.Card{{Question: "q only"}}, nil)
	assert.Error(t, err, "card without answer")
}
