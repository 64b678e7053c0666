// Package songvocab wires the tool loop, the lyrics tools and the artifact
// store into the song lyrics agent.
package songvocab

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine/factory"
	"github.com/go-go-golems/song-vocab/pkg/inference/middleware"
	"github.com/go-go-golems/song-vocab/pkg/inference/toolloop"
	"github.com/go-go-golems/song-vocab/pkg/inference/tools"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/go-go-golems/song-vocab/pkg/tools/pagecontent"
	"github.com/go-go-golems/song-vocab/pkg/tools/search"
	"github.com/go-go-golems/song-vocab/pkg/tools/songid"
	"github.com/go-go-golems/song-vocab/pkg/tools/store"
	"github.com/go-go-golems/song-vocab/pkg/tools/vocabulary"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SongLyricsAgent handles a single request. It owns its conversation state,
// so a new agent is built for every request.
type SongLyricsAgent struct {
	settings      *settings.Settings
	engine        engine.Engine
	jsonEngine    engine.Engine
	httpClient    *http.Client
	registry      *tools.InMemoryToolRegistry
	store         *store.Store
	session       *store.Session
	contextWindow int
	systemPrompt  string
}

type Option func(*SongLyricsAgent)

// WithEngine sets the engine driving the tool loop.
func WithEngine(e engine.Engine) Option {
	return func(a *SongLyricsAgent) {
		a.engine = e
	}
}

// WithJSONEngine sets the engine used by extract_vocabulary.
func WithJSONEngine(e engine.Engine) Option {
	return func(a *SongLyricsAgent) {
		a.jsonEngine = e
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *SongLyricsAgent) {
		a.httpClient = c
	}
}

func NewSongLyricsAgent(s *settings.Settings, options ...Option) (*SongLyricsAgent, error) {
	if s == nil {
		return nil, errors.New("settings cannot be nil")
	}
	a := &SongLyricsAgent{
		settings: s,
		session:  store.NewSession(),
	}
	for _, o := range options {
		o(a)
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: s.Search.HTTPTimeout}
	}

	cw, err := CalculateSafeContextWindow(s.Agent.AvailableRAMGB, s.Agent.SafetyFactor)
	if err != nil {
		return nil, err
	}
	a.contextWindow = cw
	log.Info().
		Int("context_window", cw).
		Float64("available_ram_gb", s.Agent.AvailableRAMGB).
		Msg("songvocab: calculated safe context window")

	if a.engine == nil {
		a.engine, err = factory.NewEngineFromSettings(s, engine.WithContextWindow(cw))
		if err != nil {
			return nil, errors.Wrap(err, "could not create engine")
		}
	}
	if a.jsonEngine == nil {
		a.jsonEngine, err = factory.NewEngineFromSettings(s, engine.WithContextWindow(cw), engine.WithJSONFormat())
		if err != nil {
			return nil, errors.Wrap(err, "could not create vocabulary engine")
		}
	}

	a.engine = middleware.NewEngineWithMiddleware(a.engine, middleware.NewLoggingMiddleware(log.Logger, "agent"))
	a.jsonEngine = middleware.NewEngineWithMiddleware(a.jsonEngine, middleware.NewLoggingMiddleware(log.Logger, "vocabulary"))

	a.store, err = store.New(s.LyricsDir(), s.VocabularyDir())
	if err != nil {
		return nil, err
	}

	if err := a.registerTools(); err != nil {
		return nil, err
	}

	a.systemPrompt, err = SystemPrompt(s, a.registry)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// NewToolRegistry builds the agent's tools without creating engines or
// output directories. It is meant for listing and describing the tools:
// extract_vocabulary fails unless WithJSONEngine is given.
func NewToolRegistry(s *settings.Settings, options ...Option) (tools.ToolRegistry, error) {
	if s == nil {
		return nil, errors.New("settings cannot be nil")
	}
	a := &SongLyricsAgent{
		settings: s,
		session:  store.NewSession(),
		store:    &store.Store{LyricsDir: s.LyricsDir(), VocabularyDir: s.VocabularyDir()},
	}
	for _, o := range options {
		o(a)
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: s.Search.HTTPTimeout}
	}
	if a.jsonEngine == nil {
		a.jsonEngine = noEngine{}
	}
	if err := a.registerTools(); err != nil {
		return nil, err
	}
	return a.registry, nil
}

// SystemPrompt renders the agent's system prompt for the tools in r.
func SystemPrompt(s *settings.Settings, r tools.ToolRegistry) (string, error) {
	return renderSystemPrompt(promptData{
		Tools:    tools.Describe(r),
		Sentinel: toolloop.DefaultSentinel,
		Example:  "gurenge",
		MaxTurns: s.Agent.MaxTurns,
	})
}

type noEngine struct{}

func (noEngine) RunInference(context.Context, *conversation.Conversation) (conversation.Message, error) {
	return conversation.Message{}, errors.New("no inference engine configured")
}

func (a *SongLyricsAgent) registerTools() error {
	searchClient := search.NewClient(a.settings.Search, search.WithHTTPClient(a.httpClient))
	fetcher := pagecontent.NewFetcher(a.httpClient, a.settings.Search.UserAgent)
	extractor, err := vocabulary.NewExtractor(a.jsonEngine)
	if err != nil {
		return err
	}
	saver := store.NewSaver(a.store, a.session)

	getPageContent := func(ctx context.Context, in pagecontent.Input) (*pagecontent.Content, error) {
		c, err := fetcher.Tool(ctx, in)
		if err != nil {
			return nil, err
		}
		a.session.RememberLyrics(c.Lyrics())
		return c, nil
	}

	extractVocabulary := func(ctx context.Context, in vocabulary.Input) ([]vocabulary.Item, error) {
		text := in.Text
		if strings.TrimSpace(text) == "" {
			text = a.session.Lyrics()
		}
		if strings.TrimSpace(text) == "" {
			return nil, errors.New("no text given and no lyrics fetched yet")
		}
		items, err := extractor.Extract(ctx, text)
		if err != nil {
			return nil, err
		}
		a.session.RememberVocabulary(items)
		return items, nil
	}

	defs := []struct {
		name        string
		description string
		fn          interface{}
	}{
		{"search_web_serp", "Search the web for pages with the song lyrics. Returns a ranked list of title, url and snippet.", searchClient.Tool},
		{"get_page_content", "Download a web page and extract the Japanese and romaji lyrics from it.", getPageContent},
		{"extract_vocabulary", "Extract the Japanese vocabulary (kanji, romaji, english, parts) from a text.", extractVocabulary},
		{"generate_song_id", "Generate a URL-safe id from a song title.", songid.Tool},
		{"save_results", "Save the lyrics and the vocabulary of a song. Returns the song id.", saver.Tool},
	}

	a.registry = tools.NewInMemoryToolRegistry()
	for _, d := range defs {
		def, err := tools.NewToolFromFunc(d.name, d.description, d.fn)
		if err != nil {
			return errors.Wrapf(err, "could not create tool %s", d.name)
		}
		if err := a.registry.RegisterTool(d.name, *def); err != nil {
			return err
		}
	}
	return nil
}

func (a *SongLyricsAgent) Registry() tools.ToolRegistry {
	return a.registry
}

func (a *SongLyricsAgent) SystemPrompt() string {
	return a.systemPrompt
}

func (a *SongLyricsAgent) ContextWindow() int {
	return a.contextWindow
}

func (a *SongLyricsAgent) loop() *toolloop.Loop {
	return toolloop.New(
		toolloop.WithEngine(a.engine),
		toolloop.WithRegistry(a.registry),
		toolloop.WithLoopConfig(toolloop.DefaultLoopConfig().WithMaxTurns(a.settings.Agent.MaxTurns)),
		toolloop.WithContextWindow(a.contextWindow),
	)
}

// ProcessRequest seeds a conversation with the system prompt and request
// and runs the tool loop on it.
func (a *SongLyricsAgent) ProcessRequest(ctx context.Context, request string) (*toolloop.Result, error) {
	if request == "" {
		return nil, errors.New("request cannot be empty")
	}
	log.Info().Str("request", request).Msg("songvocab: processing request")

	conv := conversation.NewConversation(
		conversation.NewSystemMessage(a.systemPrompt),
		conversation.NewUserMessage(request),
	)
	return a.ProcessConversation(ctx, conv)
}

// ProcessConversation runs the tool loop on a caller-supplied conversation, used verbatim.
func (a *SongLyricsAgent) ProcessConversation(ctx context.Context, conv *conversation.Conversation) (*toolloop.Result, error) {
	res, err := a.loop().Run(ctx, conv)
	if err != nil {
		return nil, err
	}
	log.Info().Str("output", res.Output).Int("turns", res.Turns).Msg("songvocab: request done")
	return res, nil
}

// ResolveSongID maps the final answer of a run to a song id. Models tend to
// wrap the id in a sentence, so an answer that does not name saved artifacts
// falls back to the id of the last save_results call.
func (a *SongLyricsAgent) ResolveSongID(output string) string {
	id := strings.Trim(strings.TrimSpace(output), "\"'`.")
	if id != "" && songid.Generate(id) == id {
		if _, err := a.store.Load(id); err == nil {
			return id
		}
	}
	if saved := a.session.LastSavedID(); saved != "" {
		return saved
	}
	return id
}

// LoadResults reads the artifacts saved for songID.
func (a *SongLyricsAgent) LoadResults(songID string) (*store.Artifacts, error) {
	return a.store.Load(songID)
}
