package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/events"
	"github.com/go-go-golems/song-vocab/pkg/inference/tools"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/go-go-golems/song-vocab/pkg/songvocab"
	"github.com/go-go-golems/song-vocab/pkg/tools/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConversation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- role: system
  content: You find lyrics.
- role: user
  content: Find lyrics for Gurenge
`), 0o644))

	conv, err := loadConversation(path)
	require.NoError(t, err)
	require.Equal(t, 2, conv.Len())
	msgs := conv.Messages()
	assert.Equal(t, conversation.RoleSystem, msgs[0].Role)
	assert.Equal(t, "Find lyrics for Gurenge", msgs[1].Content)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- role: robot\n  content: beep\n"), 0o644))
	_, err = loadConversation(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("[]\n"), 0o644))
	_, err = loadConversation(empty)
	assert.Error(t, err)

	_, err = loadConversation(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func testArtifacts() *store.Artifacts {
	return &store.Artifacts{
		SongID:     "gurenge",
		Lyrics:     "強くなれる理由を知った\n僕を連れて進め",
		Vocabulary: json.RawMessage(`[{"kanji":"理由","romaji":"riyuu","english":"reason","parts":[]}]`),
	}
}

func TestPrintArtifacts_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printArtifacts(&buf, testArtifacts(), "auto"))
	assert.Contains(t, buf.String(), "理由")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "gurenge", decoded["song_id"])

	assert.Error(t, printArtifacts(&buf, testArtifacts(), "xml"))
}

func TestRenderMarkdown(t *testing.T) {
	md, err := renderMarkdown(testArtifacts())
	require.NoError(t, err)
	assert.Contains(t, md, "# gurenge")
	assert.Contains(t, md, "> 僕を連れて進め")
	assert.Contains(t, md, "| 理由 | riyuu | reason |")
}

func TestRunWithEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	err := runWithEventPrinter(context.Background(), &buf, func(ctx context.Context) error {
		meta := events.MetadataFromContext(ctx)
		events.PublishEventToContext(ctx, events.NewTurnStartEvent(meta, 1))
		events.PublishEventToContext(ctx, events.NewFinalEvent(meta, 1, "gurenge"))
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "--- turn 1 ---")
	assert.Contains(t, buf.String(), "gurenge")
}

func TestRunWithEventPrinter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- runWithEventPrinter(ctx, io.Discard, func(ctx context.Context) error {
			return ctx.Err()
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("event printer did not return after cancellation")
	}
}

func TestToolRows(t *testing.T) {
	s := settings.NewSettings()
	s.Agent.OutputDir = t.TempDir()
	registry, err := songvocab.NewToolRegistry(s)
	require.NoError(t, err)

	rows := toolRows(tools.Summaries(registry))
	require.NotEmpty(t, rows)

	seen := map[string]bool{}
	for _, row := range rows {
		name, ok := row.Get("tool")
		require.True(t, ok)
		seen[name.(string)] = true
		if name == "generate_song_id" {
			param, _ := row.Get("parameter")
			assert.Equal(t, "title", param)
			required, _ := row.Get("required")
			assert.Equal(t, true, required)
		}
	}
	for _, name := range []string{"search_web_serp", "get_page_content", "extract_vocabulary", "generate_song_id", "save_results"} {
		assert.True(t, seen[name], name)
	}
}

func TestSettingsRows_MasksSecrets(t *testing.T) {
	s := settings.NewSettings()
	s.OpenAI.APIKey = "sk-secret"

	rows, err := settingsRows(s.Redacted())
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	found := false
	for _, row := range rows {
		section, _ := row.Get("section")
		key, _ := row.Get("key")
		value, _ := row.Get("value")
		assert.NotEqual(t, "sk-secret", value)
		if section == "openai" && key == "api-key" {
			found = true
			assert.Equal(t, "***", value)
		}
	}
	assert.True(t, found)

	first, _ := rows[0].Get("section")
	last, _ := rows[len(rows)-1].Get("section")
	assert.LessOrEqual(t, first.(string), last.(string))
}
