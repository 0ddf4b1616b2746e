// Package cli provides the tinychat command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"tinychat/backend"
	"tinychat/config"
	"tinychat/model"
	"tinychat/storage"
	"tinychat/ui"
)

// Version is set at build time
var Version = "0.1.0"

// rootOptions are the flags shared by every command
type rootOptions struct {
	backendURL string
}

// NewRootCmd builds the command tree. Running it without a subcommand opens
// the chat TUI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tinychat",
		Short: "Terminal client for a streaming chat server",
		Long: `tinychat talks to a chat server that streams its replies and can run
functions on the model's behalf. Without a subcommand it opens the chat TUI.

Examples:
  tinychat                              Open the chat TUI
  tinychat ask "What is the weather?"   One question, reply on stdout
  echo "Hello" | tinychat ask           Read the question from stdin
  tinychat sessions list                List saved conversations
  tinychat functions                    List the server's functions`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "Chat server URL (overrides config)")

	cmd.AddCommand(newAskCmd(opts))
	cmd.AddCommand(newSessionsCmd(opts))
	cmd.AddCommand(newFunctionsCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what most commands need: configuration, the store and a client
type app struct {
	cfg    *config.Config
	store  *storage.ConversationStore
	client *backend.Client
}

func openApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.backendURL != "" {
		cfg.BackendURL = opts.backendURL
	}

	config.InitDebugLog(cfg.DataDir())

	client, err := backend.NewClient(cfg.BackendURL, cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewConversationStore(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	return &app{cfg: cfg, store: store, client: client}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[CLI] Failed to close store: %v", err)
	}
}

// currentConversation loads the conversation that was open last, or
// creates a new one when there is none.
func (a *app) currentConversation() (*model.Conversation, error) {
	if id, err := a.store.LoadCurrentID(); err == nil && id != "" {
		conv, err := a.store.Load(id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return a.newConversation()
}

func (a *app) newConversation() (*model.Conversation, error) {
	conv, err := a.store.Create(model.DefaultTitle)
	if err != nil {
		return nil, err
	}
	if err := a.store.SaveCurrentID(conv.ID); err != nil {
		return nil, fmt.Errorf("failed to remember conversation: %w", err)
	}
	return conv, nil
}

func runTUI(cmd *cobra.Command, opts *rootOptions) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	locked, pid, err := a.store.CheckInstanceLock()
	if err != nil {
		return fmt.Errorf("failed to check instance lock: %w", err)
	}
	if locked {
		return fmt.Errorf("another tinychat instance is already running (PID %d)", pid)
	}
	if err := a.store.LockInstance(); err != nil {
		return fmt.Errorf("failed to lock instance: %w", err)
	}
	defer func() {
		if err := a.store.UnlockInstance(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[CLI] Failed to unlock instance: %v", err)
		}
	}()

	conv, err := a.currentConversation()
	if err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	view := ui.NewAppView(a.cfg, a.client, a.store, conv)
	p := tea.NewProgram(view, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running tinychat: %w", err)
	}

	// Let a title that is still being generated reach the store
	view.Wait()
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
