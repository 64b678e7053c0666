package store

import (
	"strings"
	"sync"

	"github.com/go-go-golems/song-vocab/pkg/tools/songid"
	"github.com/go-go-golems/song-vocab/pkg/tools/vocabulary"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Session remembers the last lyrics fetched and the last vocabulary
// extracted during one agent request. Tool arguments cannot carry quotes, so
// save_results falls back to these when the model cannot pass them inline.
type Session struct {
	mu         sync.Mutex
	lyrics     string
	vocabulary []vocabulary.Item
	savedID    string
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) RememberLyrics(lyrics string) {
	if strings.TrimSpace(lyrics) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lyrics = lyrics
}

func (s *Session) RememberVocabulary(items []vocabulary.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vocabulary = items
}

func (s *Session) Lyrics() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lyrics
}

func (s *Session) Vocabulary() ([]vocabulary.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vocabulary, s.vocabulary != nil
}

// LastSavedID is the id of the last successful save_results call.
func (s *Session) LastSavedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savedID
}

func (s *Session) rememberSavedID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedID = id
}

type SaveInput struct {
	SongID     string `json:"song_id" jsonschema:"description=Id returned by generate_song_id"`
	Lyrics     string `json:"lyrics,omitempty" jsonschema:"description=Lyrics to save; leave empty to save the lyrics fetched last"`
	Vocabulary string `json:"vocabulary,omitempty" jsonschema:"description=JSON list of vocabulary items; leave empty to save the vocabulary extracted last"`
}

// Saver implements the save_results tool on top of a Store.
type Saver struct {
	store   *Store
	session *Session
}

func NewSaver(store *Store, session *Session) *Saver {
	return &Saver{store: store, session: session}
}

func (s *Saver) Tool(in SaveInput) (string, error) {
	id := songid.Generate(in.SongID)
	if id == "" {
		return "", errors.New("song_id cannot be empty")
	}
	if id != in.SongID {
		log.Debug().Str("song_id", in.SongID).Str("sanitized", id).Msg("store: sanitized song id")
	}

	lyrics := in.Lyrics
	if strings.TrimSpace(lyrics) == "" {
		lyrics = s.session.Lyrics()
	}
	if strings.TrimSpace(lyrics) == "" {
		return "", errors.New("no lyrics to save, fetch them with get_page_content first")
	}

	items, ok := vocabulary.ParseList(in.Vocabulary)
	if !ok {
		items, ok = s.session.Vocabulary()
	}
	if !ok {
		return "", errors.New("no vocabulary to save, extract it with extract_vocabulary first")
	}
	if items == nil {
		items = []vocabulary.Item{}
	}

	if err := s.store.Save(id, lyrics, items); err != nil {
		return "", err
	}
	s.session.rememberSavedID(id)
	return id, nil
}
