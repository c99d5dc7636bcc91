package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// depsReport is the JSON output of the deps command.
type depsReport struct {
	Domain            string   `json:"domain"`
	Dependencies      []string `json:"dependencies"`
	AfterDependencies []string `json:"after_dependencies,omitempty"`
	Requirements      []string `json:"requirements,omitempty"`
	Closure           []string `json:"closure"`
}

// NewDepsCommand creates the deps command.
func NewDepsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps <domain>",
		Short: "Resolve an integration's dependency closure",
		Long: `Resolve the full transitive dependency closure of an integration.
Fails if a dependency is missing or the dependency graph contains a cycle.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDeps(opts *RootOptions, domain string, cmd *cobra.Command) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	integ, err := rt.Registry.Get(ctx, domain)
	if err != nil {
		return err
	}

	if !integ.ResolveDependencies(ctx, rt.Registry) {
		return fmt.Errorf("dependency resolution failed for %s", domain)
	}

	closureSet, _ := integ.AllDependencies()
	closure := make([]string, 0, len(closureSet))
	for dep := range closureSet {
		closure = append(closure, dep)
	}
	sort.Strings(closure)

	report := depsReport{
		Domain:            integ.Domain(),
		Dependencies:      integ.Dependencies(),
		AfterDependencies: integ.AfterDependencies(),
		Requirements:      integ.Requirements(),
		Closure:           closure,
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	cmd.Printf("%s\n", report.Domain)
	cmd.Printf("  declared: %v\n", report.Dependencies)
	if len(report.AfterDependencies) > 0 {
		cmd.Printf("  after: %v\n", report.AfterDependencies)
	}
	if len(report.Requirements) > 0 {
		cmd.Printf("  requirements: %v\n", report.Requirements)
	}
	cmd.Printf("  closure (%d): %v\n", len(report.Closure), report.Closure)
	return nil
}
