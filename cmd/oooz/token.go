package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oooz/oooz-bot/src/api"
	"github.com/oooz/oooz-bot/src/config"
)

func tokenCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the protected API endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.config)
			if err != nil {
				return err
			}
			token, err := api.IssueToken(args[0], []byte(cfg.API.JWTSecret), ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}
