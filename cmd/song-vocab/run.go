package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/events"
	"github.com/go-go-golems/song-vocab/pkg/inference/toolloop"
	"github.com/go-go-golems/song-vocab/pkg/songvocab"
	"github.com/go-go-golems/song-vocab/pkg/tools/store"
	"github.com/go-go-golems/song-vocab/pkg/tools/vocabulary"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

type runSettings struct {
	ConversationFile string
	PrintEvents      bool
	Output           string
}

func newRunCommand() *cobra.Command {
	rs := &runSettings{}
	cmd := &cobra.Command{
		Use:   "run [request...]",
		Short: "Find the lyrics of a song and extract its vocabulary",
		Example: `  song-vocab run "Find lyrics for Gurenge by LiSA from Demon Slayer"
  song-vocab run --conversation-file conversation.yaml --print-events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), rs, args)
		},
	}
	cmd.Flags().StringVar(&rs.ConversationFile, "conversation-file", "", "YAML list of {role, content} messages used instead of the built-in prompt")
	cmd.Flags().BoolVar(&rs.PrintEvents, "print-events", false, "Print the agent steps to stderr while it runs")
	cmd.Flags().StringVar(&rs.Output, "output", "auto", "Output format (auto, json, markdown)")
	return cmd
}

func runAgent(ctx context.Context, rs *runSettings, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := loadSettings()
	if err != nil {
		return err
	}

	var conv *conversation.Conversation
	request := strings.TrimSpace(strings.Join(args, " "))
	if rs.ConversationFile != "" {
		conv, err = loadConversation(rs.ConversationFile)
		if err != nil {
			return err
		}
	} else if request == "" {
		request, err = askRequest()
		if err != nil {
			return err
		}
	}

	agent, err := songvocab.NewSongLyricsAgent(s)
	if err != nil {
		return err
	}

	var res *toolloop.Result
	process := func(ctx context.Context) error {
		var err error
		if conv != nil {
			res, err = agent.ProcessConversation(ctx, conv)
		} else {
			res, err = agent.ProcessRequest(ctx, request)
		}
		return err
	}

	if rs.PrintEvents {
		err = runWithEventPrinter(ctx, os.Stderr, process)
	} else {
		err = process(ctx)
	}
	if err != nil {
		return err
	}

	songID := agent.ResolveSongID(res.Output)
	artifacts, err := agent.LoadResults(songID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Str("output", res.Output).Msg("agent finished without saving results")
			_, err = fmt.Fprintln(os.Stdout, res.Output)
			return err
		}
		return err
	}

	return printArtifacts(os.Stdout, artifacts, rs.Output)
}

// runWithEventPrinter routes the agent events through a watermill router to a printer.
func runWithEventPrinter(ctx context.Context, w io.Writer, process func(ctx context.Context) error) error {
	router, err := events.NewEventRouter(events.WithVerbose(false))
	if err != nil {
		return err
	}
	router.AddHandler("step-printer", events.TopicAgent, events.StepPrinterFunc(w))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer func() {
			_ = router.Close()
		}()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return ctx.Err()
		}
		return process(events.WithEventSinks(ctx, router.Sink(events.TopicAgent)))
	})

	return eg.Wait()
}

func askRequest() (string, error) {
	ui := input.DefaultUI()
	return ui.Ask("Which song are you looking for?", &input.Options{
		Required:  true,
		Loop:      true,
		HideOrder: true,
	})
}

func loadConversation(path string) (*conversation.Conversation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read conversation file")
	}
	var msgs []conversation.Message
	if err := yaml.Unmarshal(b, &msgs); err != nil {
		return nil, errors.Wrapf(err, "could not parse conversation file %s", path)
	}
	if len(msgs) == 0 {
		return nil, errors.Errorf("conversation file %s is empty", path)
	}
	for i, m := range msgs {
		if !m.Role.IsValid() {
			return nil, errors.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	return conversation.NewConversation(msgs...), nil
}

func printArtifacts(w io.Writer, a *store.Artifacts, format string) error {
	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "markdown"
		}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"song_id":    a.SongID,
			"lyrics":     a.Lyrics,
			"vocabulary": a.Vocabulary,
		})
	case "markdown":
		md, err := renderMarkdown(a)
		if err != nil {
			return err
		}
		styled, err := glamour.Render(md, "dark")
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, styled)
		return err
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func renderMarkdown(a *store.Artifacts) (string, error) {
	var items []vocabulary.Item
	if err := json.Unmarshal(a.Vocabulary, &items); err != nil {
		return "", errors.Wrap(err, "could not decode vocabulary")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n## Lyrics\n\n", a.SongID)
	for _, line := range strings.Split(strings.TrimSpace(a.Lyrics), "\n") {
		fmt.Fprintf(&sb, "> %s\n", line)
	}
	fmt.Fprintf(&sb, "\n## Vocabulary (%d)\n\n", len(items))
	sb.WriteString("| Kanji | Romaji | English |\n|---|---|---|\n")
	for _, item := range items {
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", item.Kanji, item.Romaji, item.English)
	}
	return sb.String(), nil
}
