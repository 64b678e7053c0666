package factory

import (
	"strings"

	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine/ollama"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine/openai"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/pkg/errors"
)

// SupportedProviders returns the api types NewEngineFromSettings accepts.
func SupportedProviders() []string {
	return []string{
		string(settings.ApiTypeOllama),
		string(settings.ApiTypeOpenAI),
	}
}

// NewEngineFromSettings creates the engine selected by settings.Chat.ApiType.
func NewEngineFromSettings(s *settings.Settings, options ...engine.Option) (engine.Engine, error) {
	if s == nil {
		return nil, errors.New("settings cannot be nil")
	}

	switch s.Chat.ApiType {
	case settings.ApiTypeOllama:
		return ollama.NewEngineFromSettings(s, options...)
	case settings.ApiTypeOpenAI:
		return openai.NewEngine(s, options...)
	default:
		return nil, errors.Errorf("unsupported provider %s. Supported providers: %s",
			s.Chat.ApiType, strings.Join(SupportedProviders(), ", "))
	}
}
