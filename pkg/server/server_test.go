package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-go-golems/song-vocab/pkg/inference/engine/enginetest"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/go-go-golems/song-vocab/pkg/songvocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verse = "強くなれる理由を知った 僕を連れて進め 泥だらけの走馬灯に酔う こわばる心 震える手は掴みたいものがある それだけさ"

// longer than the minimum block length pagecontent accepts as lyrics
var lyrics = strings.TrimSpace(strings.Repeat(verse+" ", 3))

const vocabularyAnswer = `{"vocabulary": [{"kanji": "理由", "romaji": "riyuu", "english": "reason", "parts": [{"kanji": "理", "romaji": ["ri"]}, {"kanji": "由", "romaji": ["yuu"]}]}]}`

type fixture struct {
	settings *settings.Settings
	pages    *httptest.Server

	mu      sync.Mutex
	scripts [][]string
	agents  int
}

func newFixture(t *testing.T) *fixture {
	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, `<html><body><div class="song-lyrics">%s</div></body></html>`, lyrics)
	}))
	t.Cleanup(pages.Close)

	s := settings.NewSettings()
	s.Agent.OutputDir = t.TempDir()
	return &fixture{settings: s, pages: pages}
}

// script queues the replies of the next agent.
func (f *fixture) script(replies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, replies)
}

func (f *fixture) newAgent(s *settings.Settings) (*songvocab.SongLyricsAgent, error) {
	f.mu.Lock()
	var replies []string
	if len(f.scripts) > 0 {
		replies, f.scripts = f.scripts[0], f.scripts[1:]
	}
	f.agents++
	f.mu.Unlock()

	return songvocab.NewSongLyricsAgent(s,
		songvocab.WithEngine(enginetest.NewScriptedEngine(replies...)),
		songvocab.WithJSONEngine(enginetest.NewScriptedEngine(vocabularyAnswer)),
		songvocab.WithHTTPClient(f.pages.Client()),
	)
}

func (f *fixture) fullRun(id string) {
	f.script(
		fmt.Sprintf(`Tool: get_page_content(url="%s/%s")`, f.pages.URL, id),
		`Tool: extract_vocabulary(text="")`,
		fmt.Sprintf(`Tool: save_results(song_id="%s")`, id),
		id+" FINISHED",
	)
}

func (f *fixture) server() *httptest.Server {
	srv := NewServer(f.settings, WithAgentFactory(f.newAgent))
	return httptest.NewServer(srv.Handler())
}

func post(t *testing.T, url string, body string) (*http.Response, map[string]interface{}) {
	resp, err := http.Post(url+"/api/agent", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestRoot(t *testing.T) {
	f := newFixture(t)
	srv := f.server()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Message   string            `json:"message"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Welcome to Song Vocab API", body.Message)
	assert.Equal(t, "POST - Find lyrics and generate vocabulary", body.Endpoints["/api/agent"])

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgent_Success(t *testing.T) {
	f := newFixture(t)
	f.fullRun("gurenge")
	srv := f.server()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/agent", "application/json",
		strings.NewReader(`{"message_request": "Find lyrics for Gurenge by LiSA"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	// non-ASCII stays unescaped
	assert.Contains(t, buf.String(), "理由")

	var body struct {
		SongID     string `json:"song_id"`
		Lyrics     string `json:"lyrics"`
		Vocabulary []struct {
			Kanji   string `json:"kanji"`
			English string `json:"english"`
		} `json:"vocabulary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Equal(t, "gurenge", body.SongID)
	assert.Equal(t, lyrics, body.Lyrics)
	require.Len(t, body.Vocabulary, 1)
	assert.Equal(t, "reason", body.Vocabulary[0].English)
}

func TestAgent_EachRequestGetsItsOwnAgent(t *testing.T) {
	f := newFixture(t)
	f.fullRun("gurenge")
	f.fullRun("homura")
	srv := f.server()
	defer srv.Close()

	resp, body := post(t, srv.URL, `{"message_request": "Gurenge"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gurenge", body["song_id"])

	resp, body = post(t, srv.URL, `{"message_request": "Homura"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "homura", body["song_id"])

	assert.Equal(t, 2, f.agents)
}

func TestAgent_BadRequests(t *testing.T) {
	f := newFixture(t)
	srv := f.server()
	defer srv.Close()

	for _, body := range []string{`not json`, `{"message_request": "  "}`, `{}`} {
		resp, _ := post(t, srv.URL, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	resp, err := http.Get(srv.URL + "/api/agent")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, 0, f.agents)
}

func TestAgent_NotFound(t *testing.T) {
	f := newFixture(t)
	f.script("I could not find anything. FINISHED")
	srv := f.server()
	defer srv.Close()

	resp, body := post(t, srv.URL, `{"message_request": "Find lyrics"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Lyrics or vocabulary not found", body["detail"])
}

func TestAgent_Failure(t *testing.T) {
	f := newFixture(t)
	f.settings.Agent.MaxTurns = 2
	f.script("hmm", "still thinking")
	srv := f.server()
	defer srv.Close()

	resp, body := post(t, srv.URL, `{"message_request": "Find lyrics"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, TimeoutDetail, body["detail"])

	// the engine script is exhausted on the first turn
	resp, body = post(t, srv.URL, `{"message_request": "Find lyrics"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, FailureDetail, body["detail"])
	assert.NotContains(t, body["detail"], "script exhausted")
}

func TestRunStartupTest(t *testing.T) {
	f := newFixture(t)
	f.fullRun("gurenge")
	srv := NewServer(f.settings, WithAgentFactory(f.newAgent))

	srv.RunStartupTest(context.Background())
	assert.Equal(t, 1, f.agents)

	// a failing startup test is only logged
	srv.RunStartupTest(context.Background())
	assert.Equal(t, 2, f.agents)
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	f.settings.Server.Listen = "127.0.0.1:0"
	srv := NewServer(f.settings, WithAgentFactory(f.newAgent))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx)
	}()
	cancel()
	assert.NoError(t, <-done)
}
