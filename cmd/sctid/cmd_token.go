package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/sctid/internal/server"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
	tokenSecret  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an HS256 admin token for reservation management",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := server.IssueAdminToken(strings.TrimSpace(tokenSecret), tokenSubject, tokenTTL, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "admin-secret", "", "HS256 secret shared with the server (or set SCTID_ADMIN_SECRET)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject recorded in server logs")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
