package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"tinychat/directive"
	"tinychat/model"
	"tinychat/storage"
)

const shortIDLen = 8

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"history"},
		Short:   "Manage saved conversations",
		Long: `View and manage saved conversations. Conversations are addressed by id
or by any prefix of it that is unique.`,
	}

	cmd.AddCommand(newSessionsListCmd(root))
	cmd.AddCommand(newSessionsShowCmd(root))
	cmd.AddCommand(newSessionsDeleteCmd(root))
	cmd.AddCommand(newSessionsRenameCmd(root))
	cmd.AddCommand(newSessionsExportCmd(root))
	cmd.AddCommand(newSessionsSearchCmd(root))
	cmd.AddCommand(newSessionsUseCmd(root))

	return cmd
}

// withStore opens the app for commands that only touch the store
func withStore(root *rootOptions, fn func(store *storage.ConversationStore) error) error {
	a, err := openApp(root)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.store)
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func newSessionsListCmd(root *rootOptions) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store *storage.ConversationStore) error {
				list, err := store.FindByTitle(title)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(list) == 0 {
					printf(out, "No conversations found.\n")
					return nil
				}

				current, _ := store.LoadCurrentID()

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				printf(w, "ID\tTITLE\tMESSAGES\tUPDATED\n")
				for _, meta := range list {
					marker := ""
					if meta.ID == current {
						marker = " *"
					}
					printf(w, "%s\t%s\t%d\t%s\n",
						shortID(meta.ID)+marker,
						runewidth.Truncate(meta.Title, 40, "..."),
						meta.MessageCount,
						meta.UpdatedAt.Local().Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Only conversations whose title matches (fuzzy)")
	return cmd
}

func newSessionsShowCmd(root *rootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store *storage.ConversationStore) error {
				id, err := store.ResolveID(args[0])
				if err != nil {
					return err
				}
				conv, err := store.Load(id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				printf(out, "ID: %s\n", conv.ID)
				printf(out, "Title: %s\n", conv.Title)
				printf(out, "Created: %s\n", conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				printf(out, "Updated: %s\n", conv.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
				printf(out, "Messages: %d\n\n", len(conv.Messages))

				for i, msg := range conv.Messages {
					printf(out, "[%d] %s (%s):\n", i+1, speaker(msg), msg.Timestamp.Local().Format("15:04"))
					content := msg.Content
					if !raw && msg.Role == model.RoleAssistant {
						content = formatAssistant(content)
					}
					printf(out, "  %s\n\n", strings.ReplaceAll(strings.TrimSpace(content), "\n", "\n  "))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Show assistant messages exactly as stored")
	return cmd
}

func speaker(msg model.Message) string {
	switch msg.Role {
	case model.RoleUser:
		return "You"
	case model.RoleFunction:
		return "Function " + msg.Name
	}
	return "Assistant"
}

// formatAssistant replaces a function call block with a one-line summary
func formatAssistant(content string) string {
	d, ok := directive.Detect(content)
	if !ok {
		return directive.Visible(content)
	}
	text := strings.TrimSpace(d.Before)
	if text != "" {
		text += "\n"
	}
	return text + "→ " + d.Call.Summary()
}

func newSessionsDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store *storage.ConversationStore) error {
				id, err := store.ResolveID(args[0])
				if err != nil {
					return err
				}
				if err := store.Delete(id); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Deleted conversation %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newSessionsRenameCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store *storage.ConversationStore) error {
				id, err := store.ResolveID(args[0])
				if err != nil {
					return err
				}
				title := strings.Join(args[1:], " ")
				if err := store.Rename(id, title); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Renamed %s to %q\n", shortID(id), strings.TrimSpace(title))
				return nil
			})
		},
	}
}

func newSessionsExportCmd(root *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a conversation to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store *storage.ConversationStore) error {
				id, err := store.ResolveID(args[0])
				if err != nil {
					return err
				}

				path := output
				if path == "" {
					conv, err := store.Load(id)
					if err != nil {
						return err
					}
					path = storage.GenerateExportPath(conv.Title)
				}

				if err := store.ExportToJSON(id, path); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Exported to %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: Downloads folder)")
	return cmd
}

func newSessionsSearchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search message text across all conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store *storage.ConversationStore) error {
				query := strings.Join(args, " ")
				matches, err := store.SearchMessages(query)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(matches) == 0 {
					printf(out, "No messages match %q.\n", query)
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				printf(w, "ID\tTITLE\t#\tROLE\tMATCH\n")
				for _, m := range matches {
					printf(w, "%s\t%s\t%d\t%s\t%s\n",
						shortID(m.ConversationID),
						runewidth.Truncate(m.ConversationTitle, 30, "..."),
						m.MessageIndex+1,
						m.Role,
						m.Preview)
				}
				return w.Flush()
			})
		},
	}
}

func newSessionsUseCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Make a conversation the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store *storage.ConversationStore) error {
				id, err := store.ResolveID(args[0])
				if err != nil {
					return err
				}
				if err := store.SaveCurrentID(id); err != nil {
					return fmt.Errorf("failed to remember conversation: %w", err)
				}
				printf(cmd.OutOrStdout(), "Current conversation is now %s\n", shortID(id))
				return nil
			})
		},
	}
}
