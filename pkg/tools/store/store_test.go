package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/song-vocab/pkg/tools/songid"
	"github.com/go-go-golems/song-vocab/pkg/tools/vocabulary"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "lyrics"), filepath.Join(dir, "vocabulary"))
	require.NoError(t, err)
	return s
}

var items = []vocabulary.Item{
	{Kanji: "強い", Romaji: "tsuyoi", English: "strong & brave", Parts: []vocabulary.Part{{Kanji: "強", Romaji: []string{"tsu", "yo"}}}},
}

func TestSaveAndLoad(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("gurenge", "強くなれる理由を知った", items))

	raw, err := os.ReadFile(filepath.Join(s.VocabularyDir, "gurenge.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kanji": "強い"`)
	assert.Contains(t, string(raw), "strong & brave")

	a, err := s.Load("gurenge")
	require.NoError(t, err)
	assert.Equal(t, "gurenge", a.SongID)
	assert.Equal(t, "強くなれる理由を知った", a.Lyrics)

	var decoded []vocabulary.Item
	require.NoError(t, json.Unmarshal(a.Vocabulary, &decoded))
	assert.Equal(t, items, decoded)
}

func TestLoad_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.Load("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, os.WriteFile(filepath.Join(s.LyricsDir, "half.txt"), []byte("x"), 0o644))
	_, err = s.Load("half")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Load("../etc/passwd")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSave_InvalidID(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.Save("", "x", items))
	assert.Error(t, s.Save("a/b", "x", items))
}

func TestSaver_UsesArguments(t *testing.T) {
	s := newStore(t)
	saver := NewSaver(s, NewSession())

	id, err := saver.Tool(SaveInput{SongID: "Test Song", Lyrics: "la la la", Vocabulary: "[]"})
	require.NoError(t, err)
	assert.Equal(t, "test-song", id)

	a, err := s.Load("test-song")
	require.NoError(t, err)
	assert.Equal(t, "la la la", a.Lyrics)
	assert.JSONEq(t, "[]", string(a.Vocabulary))
}

func TestSaver_FallsBackToSession(t *testing.T) {
	s := newStore(t)
	session := NewSession()
	saver := NewSaver(s, session)

	_, err := saver.Tool(SaveInput{SongID: "gurenge"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_page_content")

	session.RememberLyrics("強くなれる理由を知った")
	_, err = saver.Tool(SaveInput{SongID: "gurenge", Vocabulary: "see above"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract_vocabulary")

	session.RememberVocabulary(items)
	assert.Empty(t, session.LastSavedID())
	id, err := saver.Tool(SaveInput{SongID: "gurenge", Vocabulary: "see above"})
	require.NoError(t, err)
	assert.Equal(t, "gurenge", id)
	assert.Equal(t, "gurenge", session.LastSavedID())

	a, err := s.Load("gurenge")
	require.NoError(t, err)
	assert.Equal(t, "強くなれる理由を知った", a.Lyrics)
	var decoded []vocabulary.Item
	require.NoError(t, json.Unmarshal(a.Vocabulary, &decoded))
	assert.Equal(t, items, decoded)
}

func TestSaver_EmptyID(t *testing.T) {
	saver := NewSaver(newStore(t), NewSession())
	_, err := saver.Tool(SaveInput{SongID: "  "})
	assert.Error(t, err)
}

func TestSession_IgnoresBlankLyrics(t *testing.T) {
	session := NewSession()
	session.RememberLyrics("first")
	session.RememberLyrics("   ")
	assert.Equal(t, "first", session.Lyrics())

	_, ok := session.Vocabulary()
	assert.False(t, ok)
	session.RememberVocabulary([]vocabulary.Item{})
	_, ok = session.Vocabulary()
	assert.True(t, ok)
}

func TestSaver_KeepsGeneratedIDs(t *testing.T) {
	s := newStore(t)
	session := NewSession()
	saver := NewSaver(s, session)
	session.RememberLyrics("強くなれる理由を知った")
	session.RememberVocabulary(items)

	for _, title := range []string{"紅蓮華", "Gurenge v2", "LiSA"} {
		generated, err := songid.Tool(songid.Input{Title: title})
		require.NoError(t, err)

		id, err := saver.Tool(SaveInput{SongID: generated})
		require.NoError(t, err)
		assert.Equal(t, generated, id, title)

		_, err = s.Load(generated)
		assert.NoError(t, err, title)
	}
}
