package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/user/sctid/pkg/client"
)

var (
	genNamespace string
	genCategory  string
	genQuantity  int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new identifiers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := newClient().Generate(cmd.Context(), genNamespace, genCategory, genQuantity)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), ids)
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <id>... | -",
	Short: "Register externally allocated identifiers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := readIDs(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		registered, err := newClient().Register(cmd.Context(), ids)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), registered)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %d of %d identifiers\n", len(registered), len(ids))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <id>... | -",
	Short: "Show identifier records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := readIDs(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		found, err := newClient().Lookup(cmd.Context(), ids)
		if err != nil {
			return err
		}
		recs := make([]client.Record, 0, len(found))
		for _, r := range found {
			recs = append(recs, r)
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].SctID < recs[j].SctID })
		return printRecords(cmd.OutOrStdout(), recs)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <id>... | -",
	Short: "Mark identifiers as published",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := readIDs(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		recs, err := newClient().Publish(cmd.Context(), ids)
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), recs)
	},
}

var deprecateCmd = &cobra.Command{
	Use:   "deprecate <id>... | -",
	Short: "Mark identifiers as deprecated",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := readIDs(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		recs, err := newClient().Deprecate(cmd.Context(), ids)
		if err != nil {
			return err
		}
		return printRecords(cmd.OutOrStdout(), recs)
	},
}

func init() {
	generateCmd.Flags().StringVar(&genNamespace, "namespace", "", "Extension namespace (7 digits); empty for the international namespace")
	generateCmd.Flags().StringVar(&genCategory, "category", "CONCEPT", "Component category: CONCEPT, DESCRIPTION or RELATIONSHIP")
	generateCmd.Flags().IntVarP(&genQuantity, "quantity", "n", 1, "Number of identifiers to generate")

	addClientFlags(generateCmd, registerCmd, statusCmd, publishCmd, deprecateCmd)
	rootCmd.AddCommand(generateCmd, registerCmd, statusCmd, publishCmd, deprecateCmd)
}
