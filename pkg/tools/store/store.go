// Package store persists lyrics and vocabulary artifacts keyed by song id.
package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	LyricsDir     string
	VocabularyDir string
}

// New creates the output directories if needed.
func New(lyricsDir, vocabularyDir string) (*Store, error) {
	for _, d := range []string{lyricsDir, vocabularyDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.Wrapf(err, "could not create output directory %s", d)
		}
	}
	return &Store{LyricsDir: lyricsDir, VocabularyDir: vocabularyDir}, nil
}

func (s *Store) lyricsPath(id string) string {
	return filepath.Join(s.LyricsDir, id+".txt")
}

func (s *Store) vocabularyPath(id string) string {
	return filepath.Join(s.VocabularyDir, id+".json")
}

// Save writes {id}.txt and {id}.json. Vocabulary is written as indented JSON
// with non-ASCII characters left unescaped.
func (s *Store) Save(id string, lyrics string, vocabulary interface{}) error {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return errors.Errorf("invalid song id %q", id)
	}

	if err := os.WriteFile(s.lyricsPath(id), []byte(lyrics), 0o644); err != nil {
		return errors.Wrap(err, "could not save lyrics")
	}
	log.Info().Str("path", s.lyricsPath(id)).Msg("store: saved lyrics")

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vocabulary); err != nil {
		return errors.Wrap(err, "could not encode vocabulary")
	}
	if err := os.WriteFile(s.vocabularyPath(id), buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "could not save vocabulary")
	}
	log.Info().Str("path", s.vocabularyPath(id)).Msg("store: saved vocabulary")

	return nil
}

// Artifacts are the two files stored for a song.
type Artifacts struct {
	SongID     string          `json:"song_id"`
	Lyrics     string          `json:"lyrics"`
	Vocabulary json.RawMessage `json:"vocabulary"`
}

// Load reads both artifacts back. If either is missing the error wraps ErrNotFound.
func (s *Store) Load(id string) (*Artifacts, error) {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return nil, errors.Wrapf(ErrNotFound, "invalid song id %q", id)
	}

	lyrics, err := os.ReadFile(s.lyricsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "lyrics for %s", id)
		}
		return nil, errors.Wrap(err, "could not read lyrics")
	}

	vocabulary, err := os.ReadFile(s.vocabularyPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "vocabulary for %s", id)
		}
		return nil, errors.Wrap(err, "could not read vocabulary")
	}
	if !json.Valid(vocabulary) {
		return nil, errors.Errorf("vocabulary for %s is not valid JSON", id)
	}

	return &Artifacts{
		SongID:     id,
		Lyrics:     string(lyrics),
		Vocabulary: json.RawMessage(bytes.TrimSpace(vocabulary)),
	}, nil
}
