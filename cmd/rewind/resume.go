package main

import (
	"fmt"

	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/resume"
	"github.com/spf13/cobra"
)

func resumeCmd() *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a conversation in its original agent",
		Long: `Builds the agent's resume command for a session (claude --resume /
codex resume), changing into the session's project directory first when
it still exists. The command runs with this terminal attached; --print
writes it to stdout instead, for eval or copy-paste.`,
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

			row, err := st.SessionByID(args[0])
			if err != nil {
				return err
			}
			if row == nil {
				return fmt.Errorf("session not found: %s", args[0])
			}

			inv, err := resume.For(row)
			if err != nil {
				return err
			}

			if printOnly {
				fmt.Println(inv.String())
				return nil
			}
			return inv.Run()
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the resume command instead of running it")

	return cmd
}
