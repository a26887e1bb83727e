// Package memorycmder provides the memory command for inspecting and
// clearing the caller's long-term memories on a running recall server.
package memorycmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/api/client"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
)

const memoryLongDesc string = `Inspect or clear your memories on a recall server.

Memories are the facts, preferences and context recall extracted from past
conversations. The server identifies you by the bearer token
(--token, client.token or RECALL_CLIENT_TOKEN).

Examples:
  recall memory list
  recall memory stats
  recall memory clear --yes`

const memoryShortDesc string = "Inspect or clear long-term memories"

type memoryCommander struct {
	apiTarget string
	token     string
	yes       bool

	viper *viper.Viper
}

var clientFlagKeys = []string{config.FlagAPITarget, config.FlagToken}

func NewMemoryCmd() *cobra.Command {
	cmder := &memoryCommander{}

	cmd := &cobra.Command{
		Use:   "memory",
		Short: memoryShortDesc,
		Long:  memoryLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.ClientFlags, clientFlagKeys)
			cmder.viper = v
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List memories by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.runList(cmd)
		},
	}
	cmder.addClientFlags(listCmd)
	cmd.AddCommand(listCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.runStats(cmd)
		},
	}
	cmder.addClientFlags(statsCmd)
	cmd.AddCommand(statsCmd)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.runClear(cmd)
		},
	}
	clearCmd.Flags().BoolVarP(&cmder.yes, "yes", "y", false, "Do not ask for confirmation")
	cmder.addClientFlags(clearCmd)
	cmd.AddCommand(clearCmd)

	return cmd
}

// addClientFlags registers the server flags on a subcommand; the parent's
// PersistentPreRunE binds them on whichever subcommand runs.
func (c *memoryCommander) addClientFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &c.apiTarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagToken, &c.token)
}

func (c *memoryCommander) client() *client.Client {
	return client.New(c.viper.GetString("client.api_target"), c.viper.GetString("client.token"))
}

func (c *memoryCommander) runList(cmd *cobra.Command) error {
	list, err := c.client().ListMemories(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if list.Total == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No memories stored."))
		return nil
	}

	for _, m := range list.Memories {
		fmt.Fprintf(w, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-12s", m.Type)), m.Content)
	}
	fmt.Fprintf(w, "\n  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d memories for %s", list.Total, list.UserID)))
	return nil
}

func (c *memoryCommander) runStats(cmd *cobra.Command) error {
	stats, err := c.client().MemoryStats(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	row := func(k string, v any) {
		fmt.Fprintf(w, "  %s %v\n", cliui.KeyStyle.Render(fmt.Sprintf("%-13s", k)), v)
	}
	row("Total", stats.Total)
	row("Facts", stats.Facts)
	row("Preferences", stats.Preferences)
	row("Context", stats.Context)
	if stats.LastUpdated != nil {
		row("Last updated", stats.LastUpdated.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func (c *memoryCommander) runClear(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	if !c.yes && !confirm(cmd.InOrStdin(), w, "Delete all memories?") {
		return errors.New("aborted")
	}

	var deleted int
	err := cliui.Step(w, "Clearing memories", func() error {
		var err error
		deleted, err = c.client().ClearMemories(cmd.Context())
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d memories deleted", deleted)))
	return nil
}

func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "  %s [y/N] ", question)
	line, _ := bufio.NewReader(r).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
