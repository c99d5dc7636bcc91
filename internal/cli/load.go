package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/hearth/internal/integration"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Setup bool
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <domain>...",
		Short: "Load integrations and run their components",
		Long: `Load one or more integrations: resolve each one's dependency closure,
import its Lua component, and, with --setup, call the component's setup
function. Dependencies are imported before their dependents.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Setup, "setup", false, "call each component's setup function")

	return cmd
}

func runLoad(opts *LoadOptions, domains []string, cmd *cobra.Command) error {
	rt, err := newRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	results := rt.Registry.GetMany(ctx, domains...)

	var failed int
	for _, domain := range domains {
		res := results[domain]
		if res.Err != nil {
			cmd.PrintErrf("%s: %v\n", domain, res.Err)
			failed++
			continue
		}
		if err := loadOne(opts, res.Integration, rt, cmd); err != nil {
			cmd.PrintErrf("%s: %v\n", domain, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d integrations failed to load", failed, len(domains))
	}
	return nil
}

func loadOne(opts *LoadOptions, integ *integration.Integration, rt *Runtime, cmd *cobra.Command) error {
	ctx := cmd.Context()

	if !integ.ResolveDependencies(ctx, rt.Registry) {
		return fmt.Errorf("dependency resolution failed")
	}

	// Dependencies first, so a component's setup can assume its
	// dependencies' components are importable.
	closure, _ := integ.AllDependencies()
	for dep := range closure {
		depInteg, err := rt.Registry.Get(ctx, dep)
		if err != nil {
			return fmt.Errorf("dependency %s: %w", dep, err)
		}
		if _, err := depInteg.Component(ctx); err != nil {
			return fmt.Errorf("importing dependency %s: %w", dep, err)
		}
	}

	mod, err := integ.Component(ctx)
	if err != nil {
		return err
	}

	if opts.Setup && mod.HasFunction("setup") {
		if _, err := mod.Call("setup"); err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
	}

	cmd.Printf("loaded %s (%d components imported)\n", integ.Domain(), rt.Host.Count())
	return nil
}
