package factory

import (
	"testing"

	"github.com/go-go-golems/song-vocab/pkg/inference/engine/ollama"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine/openai"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineFromSettings_NilSettings(t *testing.T) {
	e, err := NewEngineFromSettings(nil)
	assert.Nil(t, e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings cannot be nil")
}

func TestNewEngineFromSettings_Ollama(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "127.0.0.1:11434")
	e, err := NewEngineFromSettings(settings.NewSettings())
	require.NoError(t, err)
	assert.IsType(t, &ollama.Engine{}, e)
}

func TestNewEngineFromSettings_OpenAI(t *testing.T) {
	s := settings.NewSettings()
	s.Chat.ApiType = settings.ApiTypeOpenAI
	s.OpenAI.BaseURL = "http://localhost:11434/v1"

	e, err := NewEngineFromSettings(s)
	require.NoError(t, err)
	assert.IsType(t, &openai.Engine{}, e)
}

func TestNewEngineFromSettings_Unsupported(t *testing.T) {
	s := settings.NewSettings()
	s.Chat.ApiType = "claude"

	_, err := NewEngineFromSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama, openai")
}
