package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/hearth/internal/discovery"
	"github.com/dshills/hearth/internal/integration"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the custom roots for integration changes",
		Long: `Watch the configured custom roots and report when integrations are
installed, removed, or their manifests change. The registry's custom index is
invalidated on each change, so a lookup that failed before an install
succeeds afterwards. Runs until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}

	return cmd
}

// reportingInvalidator forwards invalidations to the registry and reports the
// refreshed custom domain set.
type reportingInvalidator struct {
	reg *integration.Registry
	cmd *cobra.Command
}

func (ri *reportingInvalidator) InvalidateCustom() {
	ri.reg.InvalidateCustom()
	ri.cmd.Printf("custom roots changed; now serving %v\n", ri.reg.CustomDomains())
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !rt.Config.Watcher.Enabled {
		return fmt.Errorf("watcher is disabled in configuration")
	}
	if rt.Config.SafeMode {
		return fmt.Errorf("watcher is pointless in safe mode; custom roots are skipped")
	}

	w, err := discovery.NewWatcher(rt.Logger,
		&reportingInvalidator{reg: rt.Registry, cmd: cmd},
		rt.Config.Paths.Custom)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	cmd.Printf("watching %v\n", rt.Config.Paths.Custom)
	<-cmd.Context().Done()
	return nil
}
