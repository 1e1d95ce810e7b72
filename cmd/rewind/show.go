package main

import (
	"fmt"
	"os"

	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/render"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func showCmd() *cobra.Command {
	var around, context, width int
	var query string

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Render a stored conversation",
		Long: `Prints a conversation with colored role headers. --around centers a
context window on one message, the way search hits reference them;
without it the whole conversation is shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := index.Open(cfg.Index.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			if width == 0 {
				if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					width = w
				}
			}

			ctxWindow := context
			if around < 0 {
				ctxWindow = -1 // whole conversation
			}

			out, _, err := render.Conversation(st, args[0], render.Options{
				HitIdx:  around,
				Context: ctxWindow,
				Width:   width,
				Query:   query,
			})
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().IntVar(&around, "around", -1, "Message index to center on")
	cmd.Flags().IntVar(&context, "context", 10, "Messages before/after the centered message")
	cmd.Flags().IntVar(&width, "width", 0, "Wrap width (0 = terminal width)")
	cmd.Flags().StringVar(&query, "query", "", "Search query for keyword highlighting")

	return cmd
}
