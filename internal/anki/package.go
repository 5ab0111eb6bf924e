// Package anki serializes generated cards into the packaged deck format:
// a zip archive holding an SQLite collection database and a media manifest.
// The layout follows the format importers expect (schema version 11).
package anki

import (
	"archive/zip"
	"bytes"
	"crypto/sha1"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cardforge/cardforge-api/internal/domain"
)

// fieldSeparator joins note fields inside the collection database.
const fieldSeparator = "\x1f"

// collectionEpoch is a fixed creation timestamp so identically named decks
// built from identical cards get identical ids and ordering.
const collectionEpoch = 1684108800

// BuildPackage serializes the cards into packaged deck bytes. Cards keep
// their input order; deckTags are applied to every card, and a card's own
// difficulty is added as an extra tag when present.
func BuildPackage(deckName string, cards []domain.Card, deckTags []string) ([]byte, error) {
	if deckName == "" {
		return nil, fmt.Errorf("deck name cannot be empty")
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("cannot package an empty card list")
	}
	for i := range cards {
		if err := cards[i].Validate(); err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
	}

	dbBytes, err := buildCollection(deckName, cards, deckTags)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entry, err := zw.Create("collection.anki2")
	if err != nil {
		return nil, fmt.Errorf("failed to create collection entry: %w", err)
	}
	if _, err := entry.Write(dbBytes); err != nil {
		return nil, fmt.Errorf("failed to write collection entry: %w", err)
	}

	// Empty media manifest: decks generated here are text-only.
	media, err := zw.Create("media")
	if err != nil {
		return nil, fmt.Errorf("failed to create media entry: %w", err)
	}
	if _, err := media.Write([]byte("{}")); err != nil {
		return nil, fmt.Errorf("failed to write media entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize package: %w", err)
	}

	return buf.Bytes(), nil
}

// buildCollection writes the collection database to a scratch file and
// returns its bytes. The file is removed on every exit path.
func buildCollection(deckName string, cards []domain.Card, deckTags []string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "collection-*.anki2")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch collection file: %w", err)
	}
	path := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to close scratch collection file: %w", err)
	}
	defer func() { _ = os.Remove(path) }()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection database: %w", err)
	}

	if err := populateCollection(db, deckName, cards, deckTags); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("failed to close collection database: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection database: %w", err)
	}
	return data, nil
}

func populateCollection(db *sql.DB, deckName string, cards []domain.Card, deckTags []string) error {
	if _, err := db.Exec(collectionSchema); err != nil {
		return fmt.Errorf("failed to create collection schema: %w", err)
	}

	deckID := stableID(deckName)
	modelID := stableID(deckName + "::model")

	// All timestamps are pinned to the collection epoch so identical input
	// yields byte-identical packages.
	now := int64(collectionEpoch)

	modelsJSON, err := modelsJSON(modelID, deckID)
	if err != nil {
		return err
	}
	decksJSON, err := decksJSON(deckID, deckName)
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		 VALUES (1, ?, ?, ?, 11, 0, 0, 0, ?, ?, ?, ?, '{}')`,
		collectionEpoch, now*1000, now*1000,
		defaultConf, modelsJSON, decksJSON, defaultDeckConf,
	)
	if err != nil {
		return fmt.Errorf("failed to insert collection row: %w", err)
	}

	noteStmt, err := db.Prepare(
		`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		 VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')`)
	if err != nil {
		return fmt.Errorf("failed to prepare note insert: %w", err)
	}
	defer func() { _ = noteStmt.Close() }()

	cardStmt, err := db.Prepare(
		`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl,
		                    factor, reps, lapses, left, odue, odid, flags, data)
		 VALUES (?, ?, ?, 0, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`)
	if err != nil {
		return fmt.Errorf("failed to prepare card insert: %w", err)
	}
	defer func() { _ = cardStmt.Close() }()

	noteBase := int64(collectionEpoch) * 1000
	for i, card := range cards {
		fields := []string{
			card.Question,
			card.Answer,
			card.Context,
			card.Explanation,
			card.Difficulty,
			card.Source,
		}
		flds := strings.Join(fields, fieldSeparator)

		tags := append([]string(nil), deckTags...)
		if card.Difficulty != "" {
			tags = append(tags, "difficulty::"+strings.ToLower(card.Difficulty))
		}

		noteID := noteBase + int64(i)*2
		cardID := noteBase + int64(i)*2 + 1

		if _, err := noteStmt.Exec(
			noteID, noteGUID(flds), modelID, now,
			tagString(tags), flds, card.Question, fieldChecksum(card.Question),
		); err != nil {
			return fmt.Errorf("failed to insert note %d: %w", i, err)
		}
		if _, err := cardStmt.Exec(cardID, noteID, deckID, now, i+1); err != nil {
			return fmt.Errorf("failed to insert card %d: %w", i, err)
		}
	}

	return nil
}

// stableID folds a name into the positive 31-bit id range the format uses.
func stableID(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()%(1<<30)) + (1 << 30)
}

// noteGUID derives a deterministic note guid from the joined field content.
func noteGUID(flds string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(flds))
	return fmt.Sprintf("%016x", h.Sum64())
}

// fieldChecksum is the integer formed from the first 8 hex digits of the
// SHA-1 of the sort field, matching the format's duplicate detection.
func fieldChecksum(field string) int64 {
	sum := sha1.Sum([]byte(field))
	return int64(binary.BigEndian.Uint32(sum[:4]))
}

// tagString renders tags in the space-delimited form the collection
// database expects, with surrounding spaces.
func tagString(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

func modelsJSON(modelID, deckID int64) (string, error) {
	fieldNames := []string{"Question", "Answer", "Context", "Explanation", "Difficulty", "Source"}
	flds := make([]map[string]any, 0, len(fieldNames))
	for i, name := range fieldNames {
		flds = append(flds, map[string]any{
			"name": name, "ord": i, "sticky": false, "rtl": false,
			"font": "Arial", "size": 20, "media": []any{},
		})
	}

	model := map[string]any{
		"id":    modelID,
		"name":  "Generated Q&A",
		"type":  0,
		"did":   deckID,
		"mod":   collectionEpoch,
		"usn":   -1,
		"sortf": 0,
		"flds":  flds,
		"tmpls": []map[string]any{
			{
				"name": "Card 1", "ord": 0, "did": nil,
				"qfmt": questionTemplate, "afmt": answerTemplate,
				"bqfmt": "", "bafmt": "",
			},
		},
		"css":       deckCSS,
		"latexPre":  "\\documentclass[12pt]{article}\n\\begin{document}\n",
		"latexPost": "\\end{document}",
		"req":       []any{[]any{0, "any", []any{0}}},
		"tags":      []any{},
		"vers":      []any{},
	}

	data, err := json.Marshal(map[string]any{fmt.Sprint(modelID): model})
	if err != nil {
		return "", fmt.Errorf("failed to marshal model: %w", err)
	}
	return string(data), nil
}

func decksJSON(deckID int64, deckName string) (string, error) {
	deck := func(id int64, name string) map[string]any {
		return map[string]any{
			"id": id, "name": name, "desc": "",
			"mod": collectionEpoch, "usn": -1,
			"collapsed": false, "browserCollapsed": false,
			"newToday": []any{0, 0}, "revToday": []any{0, 0},
			"lrnToday": []any{0, 0}, "timeToday": []any{0, 0},
			"dyn": 0, "extendNew": 0, "extendRev": 0, "conf": 1,
		}
	}

	data, err := json.Marshal(map[string]any{
		"1":                deck(1, "Default"),
		fmt.Sprint(deckID): deck(deckID, deckName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal decks: %w", err)
	}
	return string(data), nil
}
