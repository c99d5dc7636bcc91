package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dshills/hearth/internal/integration"
)

// listEntry is one row of list output.
type listEntry struct {
	Domain string `json:"domain"`
	Source string `json:"source"` // "builtin" | "custom"
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available integrations",
		Long: `List the integrations available under the configured built-in and
custom roots. A custom integration shadows a built-in one with the same
domain.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}

	return cmd
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	seen := make(map[string]string)
	for _, domain := range rt.Registry.CustomDomains() {
		seen[domain] = "custom"
	}
	for _, root := range rt.Config.Paths.Builtin {
		for _, domain := range scanRootDomains(root) {
			if _, ok := seen[domain]; !ok {
				seen[domain] = "builtin"
			}
		}
	}

	entries := make([]listEntry, 0, len(seen))
	for domain, source := range seen {
		entries = append(entries, listEntry{Domain: domain, Source: source})
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Domain < entries[b].Domain })

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		cmd.Printf("%-30s %s\n", e.Domain, e.Source)
	}
	cmd.Printf("%d integrations\n", len(entries))
	return nil
}

// scanRootDomains returns the valid integration domains under a root.
func scanRootDomains(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var domains []string
	for _, entry := range entries {
		if !entry.IsDir() || !integration.ValidDomain(entry.Name()) {
			continue
		}
		manifest := filepath.Join(root, entry.Name(), "manifest.json")
		if _, err := os.Stat(manifest); err != nil {
			continue
		}
		domains = append(domains, entry.Name())
	}
	return domains
}
