// Package vocabulary extracts Japanese vocabulary from lyrics with a model
// running in JSON mode.
package vocabulary

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

type Part struct {
	Kanji  string   `json:"kanji"`
	Romaji []string `json:"romaji"`
}

type Item struct {
	Kanji   string `json:"kanji"`
	Romaji  string `json:"romaji"`
	English string `json:"english"`
	Parts   []Part `json:"parts"`
}

// Response is the document the model is asked to produce.
type Response struct {
	Vocabulary []Item `json:"vocabulary"`
}

const systemPrompt = `You extract Japanese vocabulary from song lyrics for language learners.
Answer with a single JSON object of the form:
{"vocabulary": [{"kanji": "...", "romaji": "...", "english": "...", "parts": [{"kanji": "...", "romaji": ["..."]}]}]}
Rules:
- one entry per distinct word, in order of first appearance
- "parts" splits the word into its characters or kana groups with their readings
- use Hepburn romanization
- do not include particles on their own
Answer with JSON only.`

type Extractor struct {
	engine engine.Engine
	schema *gojsonschema.Schema
}

// NewExtractor expects an engine configured with engine.WithJSONFormat.
func NewExtractor(e engine.Engine) (*Extractor, error) {
	reflector := jsonschema.Reflector{DoNotReference: true, AllowAdditionalProperties: true}
	s := reflector.Reflect(&Response{})
	s.Version = ""
	s.ID = ""
	b, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode vocabulary schema")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, errors.Wrap(err, "could not compile vocabulary schema")
	}
	return &Extractor{engine: e, schema: schema}, nil
}

type Input struct {
	Text string `json:"text,omitempty" jsonschema:"description=Japanese text to extract vocabulary from; leave empty to use the lyrics fetched last"`
}

// Extract asks the model for the vocabulary of text and validates the answer.
func (e *Extractor) Extract(ctx context.Context, text string) ([]Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	conv := conversation.NewConversation(
		conversation.NewSystemMessage(systemPrompt),
		conversation.NewUserMessage(text),
	)
	msg, err := e.engine.RunInference(ctx, conv)
	if err != nil {
		return nil, errors.Wrap(err, "vocabulary inference failed")
	}

	items, err := e.Decode(msg.Content)
	if err != nil {
		return nil, err
	}
	log.Info().Int("items", len(items)).Msg("vocabulary: extracted")
	return items, nil
}

// Decode parses and validates a model answer. A bare JSON list of items is
// accepted as well as the {"vocabulary": [...]} object.
func (e *Extractor) Decode(content string) ([]Item, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "[") {
		content = `{"vocabulary":` + content + `}`
	}

	res, err := e.schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, errors.Wrap(err, "model answer is not valid JSON")
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			msgs = append(msgs, re.String())
		}
		return nil, errors.Errorf("model answer does not match the vocabulary schema: %s", strings.Join(msgs, "; "))
	}

	var resp Response
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, errors.Wrap(err, "could not decode vocabulary")
	}
	return resp.Vocabulary, nil
}

// ParseList decodes a JSON list of items as passed in tool arguments.
func ParseList(s string) ([]Item, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var items []Item
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, false
	}
	return items, true
}
