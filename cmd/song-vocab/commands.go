package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/song-vocab/pkg/inference/tools"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/go-go-golems/song-vocab/pkg/songvocab"
	"github.com/go-go-golems/song-vocab/pkg/tools/songid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type ToolsCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*ToolsCommand)(nil)

func NewToolsCommand() (*ToolsCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ToolsCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"tools",
			glazed_cmds.WithShort("List the tools available to the agent, one row per parameter"),
			glazed_cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ToolsCommand) RunIntoGlazeProcessor(
	ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor,
) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	registry, err := songvocab.NewToolRegistry(s)
	if err != nil {
		return err
	}
	for _, row := range toolRows(tools.Summaries(registry)) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func toolRows(summaries []tools.ToolSummary) []types.Row {
	ret := []types.Row{}
	for _, s := range summaries {
		if len(s.Parameters) == 0 {
			ret = append(ret, types.NewRow(
				types.MRP("tool", s.Name),
				types.MRP("description", s.Description),
				types.MRP("parameter", ""),
				types.MRP("type", ""),
				types.MRP("required", false),
			))
			continue
		}
		for _, p := range s.Parameters {
			ret = append(ret, types.NewRow(
				types.MRP("tool", s.Name),
				types.MRP("description", s.Description),
				types.MRP("parameter", p.Name),
				types.MRP("type", p.Type),
				types.MRP("required", p.Required),
			))
		}
	}
	return ret
}

type ConfigCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*ConfigCommand)(nil)

func NewConfigCommand() (*ConfigCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ConfigCommand{
		CommandDescription: glazed_cmds.NewCommandDescription(
			"config",
			glazed_cmds.WithShort("Print the effective settings, secrets masked"),
			glazed_cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ConfigCommand) RunIntoGlazeProcessor(
	ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor,
) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	rows, err := settingsRows(s.Redacted())
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// settingsRows flattens the settings into (section, key, value) rows,
// using the same keys as the config file.
func settingsRows(s *settings.Settings) ([]types.Row, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode settings")
	}
	sections := map[string]map[string]interface{}{}
	if err := yaml.Unmarshal(b, &sections); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	ret := []types.Row{}
	for _, name := range names {
		keys := make([]string, 0, len(sections[name]))
		for k := range sections[name] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ret = append(ret, types.NewRow(
				types.MRP("section", name),
				types.MRP("key", k),
				types.MRP("value", sections[name][k]),
			))
		}
	}
	return ret, nil
}

func newPromptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Print the rendered system prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			registry, err := songvocab.NewToolRegistry(s)
			if err != nil {
				return err
			}
			prompt, err := songvocab.SystemPrompt(s, registry)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(os.Stdout, prompt)
			return err
		},
	}
}

func newSongIDCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "song-id <title...>",
		Short: "Print the id generated for a song title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := songid.Tool(songid.Input{Title: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}

func registerGlazedCommands(rootCmd *cobra.Command) {
	toolsCmd, err := NewToolsCommand()
	cobra.CheckErr(err)
	toolsCobraCmd, err := cli.BuildCobraCommandFromCommand(toolsCmd)
	cobra.CheckErr(err)
	rootCmd.AddCommand(toolsCobraCmd)

	configCmd, err := NewConfigCommand()
	cobra.CheckErr(err)
	configCobraCmd, err := cli.BuildCobraCommandFromCommand(configCmd)
	cobra.CheckErr(err)
	rootCmd.AddCommand(configCobraCmd)
}
