package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oooz/oooz-bot/src/data/store"
)

func snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect database snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <path>",
		Short: "Decode a snapshot and list its top-level keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			data, err := store.Decode(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, key := range store.SortedKeys(data) {
				fmt.Fprintln(out, key)
			}
			return nil
		},
	})
	return cmd
}
