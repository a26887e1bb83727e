// Package chatcmder provides the chat command for an interactive session
// against a running recall server.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/api/client"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/logger"
)

var (
	userPrompt      = cliui.UserStyle.Render("you> ")
	assistantPrompt = cliui.AssistantStyle.Render("assistant> ")
)

const chatLongDesc string = `Start an interactive chat session with a recall server.

Each message is sent as a turn to the server, which streams the answer back,
stores the exchange and remembers what it learned about you. The
conversation id is saved in .recall/session.json so the next "recall chat"
resumes where you left off.

Commands inside the session:
  /new    start a new conversation
  /exit   quit (Ctrl+D works too)

Examples:
  recall chat --token "$(recall token --user alice)"
  recall chat --new --api-target http://localhost:8080`

const chatShortDesc string = "Interactive chat with a recall server"

// defaultRenderWidth is used when the terminal size is unknown.
const defaultRenderWidth = 80

type chatCommander struct {
	apiTarget string
	token     string
	fresh     bool
	configDir string
	debug     bool

	viper   *viper.Viper
	logger  *slog.Logger
	client  *client.Client
	dotdir  *dotdir.Manager
	session *dotdir.SessionState

	in  io.Reader
	out io.Writer
	err io.Writer

	// markdown renders the final answer instead of streaming raw deltas.
	markdown bool
	width    int
}

var clientFlagKeys = []string{config.FlagAPITarget, config.FlagToken}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("could not initialize config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ClientFlags, clientFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagToken, &cmder.token)
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new conversation instead of resuming the saved one")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	c.in = cmd.InOrStdin()
	c.out = cmd.OutOrStdout()
	c.err = cmd.ErrOrStderr()
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithWriter(c.err))
	c.markdown, c.width = terminalInfo(c.out)

	c.apiTarget = c.viper.GetString("client.api_target")
	c.client = client.New(c.apiTarget, c.viper.GetString("client.token"))
	c.dotdir = dotdir.NewManager()

	fmt.Fprintln(c.out)
	if err := c.openConversation(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Server:"),
		cliui.ValueStyle.Render(c.apiTarget),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new for a new conversation, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(c.out)
			return nil
		case "/new":
			if err := c.newConversation(ctx); err != nil {
				fmt.Fprintf(c.err, "  %s %v\n", cliui.FailMark, err)
			}
			continue
		}

		if err := c.send(ctx, input); err != nil {
			fmt.Fprintf(c.err, "\n  %s %v\n\n", cliui.FailMark, err)
			continue
		}
		fmt.Fprintln(c.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// openConversation resumes the saved conversation for this server, or
// creates a new one.
func (c *chatCommander) openConversation(ctx context.Context) error {
	if c.fresh {
		return c.newConversation(ctx)
	}

	session, err := c.dotdir.LoadSession(c.configDir)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if session == nil || session.APITarget != c.apiTarget {
		return c.newConversation(ctx)
	}

	conv, err := c.client.GetConversation(ctx, session.ConversationID)
	if err != nil {
		var statusErr *client.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			c.logger.Debug("saved conversation is gone", "conversation_id", session.ConversationID)
			return c.newConversation(ctx)
		}
		return fmt.Errorf("resuming conversation: %w", err)
	}

	c.session = session
	c.session.Title = conv.Title
	fmt.Fprintf(c.out, "  %s Resuming %s %s\n",
		cliui.SuccessMark,
		cliui.TitleStyle.Render(conv.Title),
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(conv.Messages))),
	)
	return nil
}

func (c *chatCommander) newConversation(ctx context.Context) error {
	conv, err := c.client.CreateConversation(ctx, "")
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}

	c.session = &dotdir.SessionState{
		ConversationID: conv.ID,
		Title:          conv.Title,
		APITarget:      c.apiTarget,
	}
	if err := c.dotdir.SaveSession(c.session, c.configDir); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	return nil
}

// send streams one turn. A transport failure is retried once with the same
// client id, so the server replays the stored answer instead of answering
// twice.
func (c *chatCommander) send(ctx context.Context, text string) error {
	clientID := uuid.NewString()

	fmt.Fprint(c.out, assistantPrompt)
	if c.markdown {
		fmt.Fprintln(c.out)
	}

	done, err := c.stream(ctx, clientID, text)
	if err != nil && retryable(err) {
		c.logger.Debug("retrying turn", "client_id", clientID, "error", err)
		done, err = c.stream(ctx, clientID, text)
	}
	if err != nil {
		return err
	}

	if c.markdown && done.AssistantMessage != nil {
		rendered, err := cliui.RenderMarkdown(done.AssistantMessage.Text(), c.width)
		if err != nil {
			rendered = done.AssistantMessage.Text()
		}
		fmt.Fprint(c.out, rendered)
	} else {
		fmt.Fprintln(c.out)
	}

	if done.Title != "" && done.Title != c.session.Title {
		c.session.Title = done.Title
		if err := c.dotdir.SaveSession(c.session, c.configDir); err != nil {
			c.logger.Warn("saving session", "error", err)
		}
	}
	return nil
}

func (c *chatCommander) stream(ctx context.Context, clientID, text string) (*api.StreamEvent, error) {
	var streamed strings.Builder

	done, err := c.client.StreamTurn(ctx, c.session.ConversationID, clientID, text, func(ev api.StreamEvent) error {
		if ev.Type != api.StreamEventDelta || c.markdown {
			return nil
		}
		streamed.WriteString(ev.Text)
		_, err := fmt.Fprint(c.out, ev.Text)
		return err
	})
	if err != nil {
		return nil, err
	}

	// A replayed turn carries no deltas.
	if !c.markdown && streamed.Len() == 0 && done.AssistantMessage != nil {
		fmt.Fprint(c.out, done.AssistantMessage.Text())
	}
	return done, nil
}

// retryable reports whether the turn never reached a definite outcome.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, client.ErrStream) {
		return false
	}
	var statusErr *client.StatusError
	return !errors.As(err, &statusErr)
}

func terminalInfo(w io.Writer) (bool, int) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, 0
	}

	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = defaultRenderWidth
	}
	return true, width
}
