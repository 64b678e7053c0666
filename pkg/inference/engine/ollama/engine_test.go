package ollama

import (
	"context"
	"testing"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/events"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	chunks []string
	err    error
	req    *api.ChatRequest
}

func (f *fakeClient) Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	f.req = req
	for _, c := range f.chunks {
		if err := fn(api.ChatResponse{Message: &api.Message{Role: "assistant", Content: c}}); err != nil {
			return err
		}
	}
	if err := fn(api.ChatResponse{Done: true}); err != nil {
		return err
	}
	return f.err
}

func testConversation() *conversation.Conversation {
	return conversation.NewConversation(
		conversation.NewSystemMessage("You are a lyrics agent."),
		conversation.NewUserMessage("Find Gurenge by LiSA"),
	)
}

func TestRunInference_DrainsStream(t *testing.T) {
	client := &fakeClient{chunks: []string{"Tool: ", "generate_song_id", `(title="Gurenge")`}}
	s := settings.NewSettings()
	sink := events.NewCollectingSink()
	ctx := events.WithEventSinks(context.Background(), sink)

	e := NewEngine(client, s, engine.WithContextWindow(32768))
	msg, err := e.RunInference(ctx, testConversation())
	require.NoError(t, err)

	assert.Equal(t, conversation.RoleAssistant, msg.Role)
	assert.Equal(t, `Tool: generate_song_id(title="Gurenge")`, msg.Content)
	assert.Len(t, sink.OfType(events.EventTypePartialCompletion), 3)

	require.NotNil(t, client.req)
	assert.Equal(t, "mistral", client.req.Model)
	assert.Len(t, client.req.Messages, 2)
	assert.Equal(t, "system", client.req.Messages[0].Role)
	assert.Equal(t, 32768, client.req.Options["num_ctx"])
	assert.Equal(t, "", client.req.Format)
}

func TestRunInference_JSONFormatAndOverrides(t *testing.T) {
	client := &fakeClient{chunks: []string{`[]`}}
	s := settings.NewSettings()
	s.Chat.Stream = false
	s.Ollama.NumCtx = 4096
	temp := 0.1
	s.Chat.Temperature = &temp

	e := NewEngine(client, s, engine.WithJSONFormat(), engine.WithContextWindow(32768))
	msg, err := e.RunInference(context.Background(), testConversation())
	require.NoError(t, err)

	assert.Equal(t, "[]", msg.Content)
	assert.Equal(t, "json", client.req.Format)
	assert.Equal(t, 4096, client.req.Options["num_ctx"])
	assert.Equal(t, 0.1, client.req.Options["temperature"])
	require.NotNil(t, client.req.Stream)
	assert.False(t, *client.req.Stream)
}

func TestRunInference_Error(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	e := NewEngine(client, settings.NewSettings())

	_, err := e.RunInference(context.Background(), testConversation())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
