package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/sctid/pkg/client"
)

var (
	serverURL  string
	authToken  string
	outputJSON bool
)

func addClientFlags(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "sctid server URL (or set SCTID_SERVER)")
		cmd.Flags().StringVar(&authToken, "token", "", "Admin bearer token (or set SCTID_TOKEN)")
		cmd.Flags().BoolVar(&outputJSON, "output-json", false, "Output as JSON")
	}
}

func newClient() *client.Client {
	var opts []client.Option
	if t := strings.TrimSpace(authToken); t != "" {
		opts = append(opts, client.WithToken(t))
	}
	return client.New(serverURL, opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readIDs returns the ids given as arguments, or one per line from stdin
// when the only argument is "-".
func readIDs(args []string, stdin io.Reader) ([]string, error) {
	if len(args) != 1 || args[0] != "-" {
		return args, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read ids from stdin: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids on stdin")
	}
	return ids, nil
}

func printRecords(w io.Writer, recs []client.Record) error {
	if outputJSON {
		return printJSON(w, recs)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SCTID\tNAMESPACE\tCATEGORY\tSTATUS")
	for _, r := range recs {
		ns := r.Namespace
		if ns == "" {
			ns = "INT"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.SctID, ns, r.Category, r.Status)
	}
	return tw.Flush()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
