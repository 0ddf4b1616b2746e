package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"tinychat/chat"
	"tinychat/directive"
	"tinychat/model"
)

type askOptions struct {
	conversation string
	title        string
	newChat      bool
	noStream     bool
	instant      bool
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message and print the reply",
		Long: `Send one message to the current conversation and print the reply as it
arrives. Function calls requested by the model are executed and the
conversation continues until it answers in plain text.

The message is read from stdin when no argument is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				data, err := readStdin(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = data
			}
			if strings.TrimSpace(text) == "" {
				return cmd.Help()
			}
			return runAsk(cmd, root, opts, text)
		},
	}

	cmd.Flags().StringVarP(&opts.conversation, "conversation", "c", "", "Conversation id or unique id prefix")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "Pick the conversation whose title best matches")
	cmd.Flags().BoolVarP(&opts.newChat, "new", "n", false, "Start a new conversation")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "Wait for the whole reply instead of streaming it")
	cmd.Flags().BoolVar(&opts.instant, "instant", false, "Print text as it arrives, without the typewriter delay")
	cmd.MarkFlagsMutuallyExclusive("conversation", "title", "new")

	return cmd
}

// readStdin returns piped input; an interactive terminal yields nothing
func readStdin(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func runAsk(cmd *cobra.Command, root *rootOptions, opts *askOptions, text string) error {
	a, err := openApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	convID, err := a.pickConversation(opts)
	if err != nil {
		return err
	}

	sessionOpts := chat.OptionsFromConfig(a.cfg)
	if opts.instant {
		sessionOpts.TypewriterDelay = 0
	}
	orchestrator := chat.New(a.client, a.store, sessionOpts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	display := &writerDisplay{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}

	var outcome chat.Outcome
	if opts.noStream {
		outcome = orchestrator.Complete(ctx, convID, text, display)
	} else {
		outcome = orchestrator.Submit(ctx, convID, text, display)
	}
	orchestrator.Wait()

	if outcome.HopLimitReached {
		printf(cmd.ErrOrStderr(), "Stopped after %d function calls\n", outcome.Hops)
	}
	if outcome.Kind == chat.OutcomeFailed {
		return outcome.Err
	}
	return nil
}

func (a *app) pickConversation(opts *askOptions) (string, error) {
	switch {
	case opts.newChat:
		conv, err := a.newConversation()
		if err != nil {
			return "", err
		}
		return conv.ID, nil

	case opts.conversation != "":
		id, err := a.store.ResolveID(opts.conversation)
		if err != nil {
			return "", err
		}
		return id, a.store.SaveCurrentID(id)

	case opts.title != "":
		matches, err := a.store.FindByTitle(opts.title)
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			return "", fmt.Errorf("no conversation matches %q", opts.title)
		}
		return matches[0].ID, a.store.SaveCurrentID(matches[0].ID)
	}

	conv, err := a.currentConversation()
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

// writerDisplay prints a session to a terminal. Reply text goes to out as it
// is revealed; function activity and errors go to errOut.
type writerDisplay struct {
	out    io.Writer
	errOut io.Writer

	printed string
}

func (d *writerDisplay) Begin() {
	d.printed = ""
}

func (d *writerDisplay) Update(partial string) {
	d.write(partial)
}

func (d *writerDisplay) FunctionCall(call directive.Call) {
	d.endLine()
	printf(d.errOut, "→ %s\n", call.Summary())
}

func (d *writerDisplay) FunctionResult(msg model.Message) {
	printf(d.errOut, "← %s: %s\n", msg.Name, msg.Preview(80))
}

func (d *writerDisplay) Error(text string) {
	d.endLine()
	printf(d.errOut, "%s\n", text)
}

func (d *writerDisplay) Done(final string) {
	d.write(final)
	d.endLine()
}

// write prints what text adds to the printed prefix. Final texts arrive
// trimmed, so leading whitespace already printed is carried over.
func (d *writerDisplay) write(text string) {
	trimmed := strings.TrimLeftFunc(d.printed, unicode.IsSpace)
	if lead := d.printed[:len(d.printed)-len(trimmed)]; lead != "" && !strings.HasPrefix(text, lead) {
		text = lead + strings.TrimLeftFunc(text, unicode.IsSpace)
	}
	if strings.HasPrefix(d.printed, text) {
		return
	}
	if !strings.HasPrefix(text, d.printed) {
		d.endLine()
	}
	printf(d.out, "%s", text[len(d.printed):])
	d.printed = text
}

func (d *writerDisplay) endLine() {
	if d.printed != "" {
		printf(d.out, "\n")
	}
	d.printed = ""
}
