package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ManifestOptions holds flags for the manifest command.
type ManifestOptions struct {
	*RootOptions
	Key string
}

// NewManifestCommand creates the manifest command.
func NewManifestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ManifestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "manifest <domain>",
		Short: "Show an integration's manifest",
		Long: `Show the manifest of an integration, resolved with the usual
custom-over-builtin precedence.

With --key, print a single manifest field instead of the whole document:

  hearth manifest zwave --key iot_class
  hearth manifest zwave --key zeroconf.0`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "print a single manifest field (dot path)")

	return cmd
}

func runManifest(opts *ManifestOptions, domain string, cmd *cobra.Command) error {
	rt, err := newRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	integ, err := rt.Registry.Get(cmd.Context(), domain)
	if err != nil {
		return err
	}

	if opts.Key != "" {
		value, ok := integ.Manifest().Capability(opts.Key)
		if !ok {
			return fmt.Errorf("manifest for %s has no field %q", domain, opts.Key)
		}
		cmd.Println(value.String())
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, integ.Manifest().JSON(), "", "  "); err != nil {
		return err
	}
	cmd.Println(buf.String())
	return nil
}
