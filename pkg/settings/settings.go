package settings

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ApiType string

const (
	ApiTypeOllama ApiType = "ollama"
	ApiTypeOpenAI ApiType = "openai"
)

const (
	DefaultModel        = "mistral"
	DefaultMaxTurns     = 10
	DefaultRAMGB        = 16.0
	DefaultSafetyFactor = 0.8
	DefaultSerpAPIURL   = "https://serpapi.com/search.json"
	DefaultDuckDuckGo   = "https://html.duckduckgo.com/html/"
)

type ChatSettings struct {
	ApiType     ApiType  `yaml:"api-type"`
	Engine      string   `yaml:"engine"`
	Stream      bool     `yaml:"stream"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// OllamaSettings are passed as request options. The host comes from OLLAMA_HOST.
type OllamaSettings struct {
	// NumCtx overrides the context window computed from the available RAM.
	NumCtx int  `yaml:"num-ctx,omitempty"`
	Seed   *int `yaml:"seed,omitempty"`
	TopK   *int `yaml:"top-k,omitempty"`
}

type OpenAISettings struct {
	APIKey  string `yaml:"api-key,omitempty"`
	BaseURL string `yaml:"base-url,omitempty"`
}

type SearchSettings struct {
	SerpAPIKey    string        `yaml:"serp-api-key,omitempty"`
	SerpAPIURL    string        `yaml:"serp-api-url"`
	DuckDuckGoURL string        `yaml:"duckduckgo-url"`
	NumResults    int           `yaml:"num-results"`
	HTTPTimeout   time.Duration `yaml:"http-timeout"`
	UserAgent     string        `yaml:"user-agent"`
}

type AgentSettings struct {
	MaxTurns       int     `yaml:"max-turns"`
	AvailableRAMGB float64 `yaml:"available-ram-gb"`
	SafetyFactor   float64 `yaml:"context-safety-factor"`
	OutputDir      string  `yaml:"output-dir"`
}

type ServerSettings struct {
	Listen      string        `yaml:"listen"`
	StartupTest bool          `yaml:"startup-test"`
	ReadTimeout time.Duration `yaml:"read-timeout"`
}

// Settings holds everything needed to build engines, tools and the agent.
type Settings struct {
	Chat   *ChatSettings   `yaml:"chat"`
	Ollama *OllamaSettings `yaml:"ollama"`
	OpenAI *OpenAISettings `yaml:"openai"`
	Search *SearchSettings `yaml:"search"`
	Agent  *AgentSettings  `yaml:"agent"`
	Server *ServerSettings `yaml:"server"`
}

func NewSettings() *Settings {
	return &Settings{
		Chat: &ChatSettings{
			ApiType: ApiTypeOllama,
			Engine:  DefaultModel,
			Stream:  true,
		},
		Ollama: &OllamaSettings{},
		OpenAI: &OpenAISettings{},
		Search: &SearchSettings{
			SerpAPIURL:    DefaultSerpAPIURL,
			DuckDuckGoURL: DefaultDuckDuckGo,
			NumResults:    5,
			HTTPTimeout:   30 * time.Second,
			UserAgent:     "Mozilla/5.0 (compatible; song-vocab/0.1)",
		},
		Agent: &AgentSettings{
			MaxTurns:       DefaultMaxTurns,
			AvailableRAMGB: DefaultRAMGB,
			SafetyFactor:   DefaultSafetyFactor,
			OutputDir:      "outputs",
		},
		Server: &ServerSettings{
			Listen:      ":8000",
			ReadTimeout: 30 * time.Second,
		},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (s *Settings) Redacted() *Settings {
	ret := s.Clone()
	if ret.OpenAI.APIKey != "" {
		ret.OpenAI.APIKey = "***"
	}
	if ret.Search.SerpAPIKey != "" {
		ret.Search.SerpAPIKey = "***"
	}
	return ret
}

func (s *Settings) LyricsDir() string {
	return filepath.Join(s.Agent.OutputDir, "lyrics")
}

func (s *Settings) VocabularyDir() string {
	return filepath.Join(s.Agent.OutputDir, "vocabulary")
}

func (s *Settings) Validate() error {
	switch s.Chat.ApiType {
	case ApiTypeOllama, ApiTypeOpenAI:
	default:
		return errors.Errorf("unsupported api type %q", s.Chat.ApiType)
	}
	if s.Chat.Engine == "" {
		return errors.New("engine cannot be empty")
	}
	if s.Agent.MaxTurns <= 0 {
		return errors.Errorf("max-turns must be positive, got %d", s.Agent.MaxTurns)
	}
	if s.Agent.AvailableRAMGB <= 0 {
		return errors.Errorf("available-ram-gb must be positive, got %v", s.Agent.AvailableRAMGB)
	}
	if s.Agent.SafetyFactor <= 0 || s.Agent.SafetyFactor > 1 {
		return errors.Errorf("context-safety-factor must be in (0, 1], got %v", s.Agent.SafetyFactor)
	}
	if s.Agent.OutputDir == "" {
		return errors.New("output-dir cannot be empty")
	}
	if s.Search.NumResults <= 0 {
		return errors.Errorf("search-results must be positive, got %d", s.Search.NumResults)
	}
	return nil
}

// AddFlags registers the settings flags with their defaults. Flag names are
// also the viper keys, and map to SONG_VOCAB_* environment variables.
func AddFlags(fs *pflag.FlagSet) {
	d := NewSettings()

	fs.String("api-type", string(d.Chat.ApiType), "Inference backend (ollama, openai)")
	fs.String("engine", d.Chat.Engine, "Model name")
	fs.Bool("stream", d.Chat.Stream, "Stream completions from the backend")
	fs.Float64("temperature", -1, "Sampling temperature (negative keeps the backend default)")

	fs.Int("ollama-num-ctx", 0, "Context window override (0 computes it from available RAM)")
	fs.Int("ollama-seed", -1, "Sampling seed (negative keeps the backend default)")
	fs.Int("ollama-top-k", 0, "Top-k sampling (0 keeps the backend default)")

	fs.String("openai-api-key", "", "API key for OpenAI-compatible backends")
	fs.String("openai-base-url", "", "Base URL for OpenAI-compatible backends")

	fs.String("serp-api-key", "", "SerpAPI key (DuckDuckGo is used when empty)")
	fs.String("serp-api-url", d.Search.SerpAPIURL, "SerpAPI endpoint")
	fs.String("duckduckgo-url", d.Search.DuckDuckGoURL, "DuckDuckGo HTML endpoint")
	fs.Int("search-results", d.Search.NumResults, "Number of search results returned to the model")
	fs.Duration("http-timeout", d.Search.HTTPTimeout, "Timeout for outgoing HTTP requests")

	fs.Int("max-turns", d.Agent.MaxTurns, "Maximum number of model turns per request")
	fs.Float64("available-ram-gb", d.Agent.AvailableRAMGB, "RAM available to the model, used to size the context window")
	fs.Float64("context-safety-factor", d.Agent.SafetyFactor, "Fraction of the theoretical context window to use")
	fs.String("output-dir", d.Agent.OutputDir, "Directory receiving lyrics/ and vocabulary/")

	fs.String("listen", d.Server.Listen, "HTTP listen address")
	fs.Bool("startup-test", false, "Send a test request to the agent endpoint after startup")
}

// NewSettingsFromViper reads the settings registered by AddFlags.
func NewSettingsFromViper(v *viper.Viper) (*Settings, error) {
	s := NewSettings()

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	apiType := string(s.Chat.ApiType)
	setString("api-type", &apiType)
	s.Chat.ApiType = ApiType(strings.ToLower(apiType))
	setString("engine", &s.Chat.Engine)
	if v.IsSet("stream") {
		s.Chat.Stream = v.GetBool("stream")
	}
	if v.IsSet("temperature") {
		if t := v.GetFloat64("temperature"); t >= 0 {
			s.Chat.Temperature = &t
		}
	}

	if v.IsSet("ollama-num-ctx") {
		s.Ollama.NumCtx = v.GetInt("ollama-num-ctx")
	}
	if v.IsSet("ollama-seed") {
		if seed := v.GetInt("ollama-seed"); seed >= 0 {
			s.Ollama.Seed = &seed
		}
	}

	if v.IsSet("ollama-top-k") {
		if k := v.GetInt("ollama-top-k"); k > 0 {
			s.Ollama.TopK = &k
		}
	}

	setString("openai-api-key", &s.OpenAI.APIKey)
	setString("openai-base-url", &s.OpenAI.BaseURL)

	setString("serp-api-key", &s.Search.SerpAPIKey)
	setString("serp-api-url", &s.Search.SerpAPIURL)
	setString("duckduckgo-url", &s.Search.DuckDuckGoURL)
	if v.IsSet("search-results") {
		s.Search.NumResults = v.GetInt("search-results")
	}
	if v.IsSet("http-timeout") {
		s.Search.HTTPTimeout = v.GetDuration("http-timeout")
	}

	if v.IsSet("max-turns") {
		s.Agent.MaxTurns = v.GetInt("max-turns")
	}
	if v.IsSet("available-ram-gb") {
		s.Agent.AvailableRAMGB = v.GetFloat64("available-ram-gb")
	}
	if v.IsSet("context-safety-factor") {
		s.Agent.SafetyFactor = v.GetFloat64("context-safety-factor")
	}
	setString("output-dir", &s.Agent.OutputDir)

	setString("listen", &s.Server.Listen)
	if v.IsSet("startup-test") {
		s.Server.StartupTest = v.GetBool("startup-test")
	}

	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	return s, nil
}
