// Package recallcmder is the root recall command.
package recallcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/recall/cmd/recall/chat"
	configcmder "github.com/papercomputeco/recall/cmd/recall/config"
	initcmder "github.com/papercomputeco/recall/cmd/recall/init"
	memorycmder "github.com/papercomputeco/recall/cmd/recall/memory"
	servecmder "github.com/papercomputeco/recall/cmd/recall/serve"
	tokencmder "github.com/papercomputeco/recall/cmd/recall/token"
	versioncmder "github.com/papercomputeco/recall/cmd/version"
)

const recallLongDesc string = `Recall is a chat backend with long-term memory.

It stores conversations, streams completions from an LLM provider and
remembers facts and preferences across conversations.

Run the server:
  recall serve

Talk to it:
  recall token --user alice > token.txt
  recall chat --token "$(cat token.txt)"`

const recallShortDesc string = "Recall - chat with memory"

func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "recall",
		Short:        recallShortDesc,
		Long:         recallLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .recall/ config directory")

	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(tokencmder.NewTokenCmd())
	cmd.AddCommand(memorycmder.NewMemoryCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
