// Package server exposes the song lyrics agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/song-vocab/pkg/inference/toolloop"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/go-go-golems/song-vocab/pkg/songvocab"
	"github.com/go-go-golems/song-vocab/pkg/tools/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// StartupTestRequest is sent through the agent on startup when enabled.
const StartupTestRequest = "Find lyrics for Gurenge by LiSA from Demon Slayer"

// Bodies of 500 responses. Error details are only logged.
const (
	TimeoutDetail = "Max turns reached without completion"
	FailureDetail = "Error processing request"
)

// AgentFactory builds a fresh agent for one request.
type AgentFactory func(s *settings.Settings) (*songvocab.SongLyricsAgent, error)

type Server struct {
	settings *settings.Settings
	newAgent AgentFactory

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithAgentFactory(f AgentFactory) Option {
	return func(s *Server) {
		s.newAgent = f
	}
}

func NewServer(s *settings.Settings, opts ...Option) *Server {
	ret := &Server{
		settings: s,
		mux:      http.NewServeMux(),
		newAgent: func(s *settings.Settings) (*songvocab.SongLyricsAgent, error) {
			return songvocab.NewSongLyricsAgent(s)
		},
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.routes()
	return ret
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/agent", s.handleAgent)
	s.mux.HandleFunc("/", s.handleRoot)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.settings.Server.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.settings.Server.ReadTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.settings.Server.Listen).Msg("server: listening")
		errCh <- s.server.ListenAndServe()
	}()

	if s.settings.Server.StartupTest {
		go s.RunStartupTest(ctx)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("server: shutting down")
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// RunStartupTest runs one request through a fresh agent. Failures are logged only.
func (s *Server) RunStartupTest(ctx context.Context) {
	log.Info().Str("request", StartupTestRequest).Msg("server: running startup test")
	resp, err := s.process(ctx, StartupTestRequest)
	if err != nil {
		log.Warn().Err(err).Msg("server: startup test failed")
		return
	}
	log.Info().Str("song_id", resp.SongID).Int("lyrics_length", len(resp.Lyrics)).Msg("server: startup test done")
}

type agentRequest struct {
	MessageRequest string `json:"message_request"`
}

type agentResponse struct {
	SongID     string          `json:"song_id"`
	Lyrics     string          `json:"lyrics"`
	Vocabulary json.RawMessage `json:"vocabulary"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Welcome to Song Vocab API",
		"endpoints": map[string]string{
			"/api/agent": "POST - Find lyrics and generate vocabulary",
		},
	})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.MessageRequest) == "" {
		writeError(w, http.StatusBadRequest, "message_request cannot be empty")
		return
	}
	log.Info().Str("request", req.MessageRequest).Msg("server: received request")

	resp, err := s.process(r.Context(), req.MessageRequest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("server: artifacts not found")
			writeError(w, http.StatusNotFound, "Lyrics or vocabulary not found")
			return
		}
		log.Error().Err(err).Bool("timeout", toolloop.IsTimeout(err)).Msg("server: error processing request")
		if toolloop.IsTimeout(err) {
			writeError(w, http.StatusInternalServerError, TimeoutDetail)
			return
		}
		writeError(w, http.StatusInternalServerError, FailureDetail)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) process(ctx context.Context, request string) (*agentResponse, error) {
	agent, err := s.newAgent(s.settings.Clone())
	if err != nil {
		return nil, errors.Wrap(err, "could not create agent")
	}

	res, err := agent.ProcessRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	songID := agent.ResolveSongID(res.Output)
	artifacts, err := agent.LoadResults(songID)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("song_id", songID).
		Int("lyrics_length", len(artifacts.Lyrics)).
		Msg("server: loaded results")

	return &agentResponse{
		SongID:     artifacts.SongID,
		Lyrics:     artifacts.Lyrics,
		Vocabulary: artifacts.Vocabulary,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"detail": msg,
	})
}
