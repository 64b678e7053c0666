package songvocab

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

//go:embed prompts/lyrics-agent.md
var lyricsAgentPrompt string

type promptData struct {
	Tools    string
	Sentinel string
	Example  string
	MaxTurns int
}

func renderSystemPrompt(data promptData) (string, error) {
	tmpl, err := template.New("lyrics-agent").Funcs(sprig.TxtFuncMap()).Parse(lyricsAgentPrompt)
	if err != nil {
		return "", errors.Wrap(err, "could not parse system prompt")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "could not render system prompt")
	}
	return buf.String(), nil
}
