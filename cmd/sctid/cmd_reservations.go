package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/pkg/client"
)

var reservationsCmd = &cobra.Command{
	Use:   "reservations",
	Short: "Manage reserved item-id ranges",
}

var reservationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reservation ranges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ranges, err := newClient().ListReservations(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), ranges)
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "NAME\tLOWER\tUPPER\tNAMESPACE\tCATEGORIES")
		for _, r := range ranges {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
				r.Name, r.LowerBound, r.UpperBound, namespaceLabel(r.Namespace), strings.Join(r.Categories, ","))
		}
		return tw.Flush()
	},
}

var (
	resLower      uint64
	resUpper      uint64
	resNamespace  string
	resAllSpaces  bool
	resCategories []string
)

var reservationsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Reserve an item-id range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := client.Reservation{
			Name:       args[0],
			LowerBound: resLower,
			UpperBound: resUpper,
			Categories: resCategories,
		}
		if !resAllSpaces {
			ns := resNamespace
			r.Namespace = &ns
		}
		created, err := newClient().CreateReservation(cmd.Context(), r)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd.OutOrStdout(), created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reservation %s created [%d, %d]\n", created.Name, created.LowerBound, created.UpperBound)
		return nil
	},
}

var reservationsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a reservation range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteReservation(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reservation %s deleted\n", args[0])
		return nil
	},
}

var reservationsLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Create every reservation defined in a YAML file",
	Long: "Validates the file against the reservation schema, then creates each range " +
		"that is not already registered under the same name.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ranges, err := reservation.LoadFile(args[0])
		if err != nil {
			return err
		}
		c := newClient()
		existing, err := c.ListReservations(cmd.Context())
		if err != nil {
			return err
		}
		known := make(map[string]struct{}, len(existing))
		for _, r := range existing {
			known[r.Name] = struct{}{}
		}

		var created, skipped int
		var errs []error
		for _, r := range ranges {
			if _, ok := known[r.Name]; ok {
				skipped++
				continue
			}
			if _, err := c.CreateReservation(cmd.Context(), toClientReservation(r)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
				continue
			}
			created++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %d, skipped %d existing, failed %d\n", created, skipped, len(errs))
		return errors.Join(errs...)
	},
}

func toClientReservation(r reservation.Range) client.Reservation {
	out := client.Reservation{
		Name:       r.Name,
		LowerBound: r.LowerBound,
		UpperBound: r.UpperBound,
		Namespace:  r.Namespace,
		Categories: r.CategoryLabels(),
	}
	return out
}

func namespaceLabel(ns *string) string {
	switch {
	case ns == nil:
		return "*"
	case *ns == "":
		return "INT"
	}
	return *ns
}

func init() {
	reservationsCreateCmd.Flags().Uint64Var(&resLower, "lower", 0, "Lowest reserved item id")
	reservationsCreateCmd.Flags().Uint64Var(&resUpper, "upper", 0, "Highest reserved item id")
	reservationsCreateCmd.Flags().StringVar(&resNamespace, "namespace", "", "Namespace the range applies to; empty for the international namespace")
	reservationsCreateCmd.Flags().BoolVar(&resAllSpaces, "all-namespaces", false, "Apply the range to every namespace")
	reservationsCreateCmd.Flags().StringSliceVar(&resCategories, "category", []string{"CONCEPT"}, "Categories the range applies to (repeatable)")
	reservationsCreateCmd.MarkFlagRequired("lower")
	reservationsCreateCmd.MarkFlagRequired("upper")
	reservationsCreateCmd.MarkFlagsMutuallyExclusive("namespace", "all-namespaces")

	addClientFlags(reservationsListCmd, reservationsCreateCmd, reservationsDeleteCmd, reservationsLoadCmd)
	reservationsCmd.AddCommand(reservationsListCmd, reservationsCreateCmd, reservationsDeleteCmd, reservationsLoadCmd)
	rootCmd.AddCommand(reservationsCmd)
}
