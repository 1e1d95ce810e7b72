package main

import (
	"github.com/rewind-cli/rewind/internal/index"
	"github.com/rewind-cli/rewind/internal/open"
	"github.com/spf13/cobra"
)

func openCmd() *cobra.Command {
	var hit int

	cmd := &cobra.Command{
		Use:   "open <session-id>",
		Short: "Open the raw transcript in $EDITOR, at the hit line",
		Args:  cobra.ExactArgs(1),
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

			return open.Session(st, args[0], hit)
		},
	}

	cmd.Flags().IntVar(&hit, "hit", -1, "Message index to jump to")

	return cmd
}
