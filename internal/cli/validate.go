package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/hearth/internal/integration"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <integration-dir>",
		Short: "Validate an integration directory",
		Long: `Validate an integration directory before installing it under a custom
root: the manifest must parse, the domain must match the directory name, and
for custom integrations the version must use a recognized scheme.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0], cmd)
		},
	}

	return cmd
}

func runValidate(dir string, cmd *cobra.Command) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	dirName := filepath.Base(filepath.Clean(dir))
	if !integration.ValidDomain(dirName) {
		return fmt.Errorf("directory name %q is not a valid domain", dirName)
	}

	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	manifest, err := integration.ParseManifest(data)
	if err != nil {
		return err
	}
	if manifest.Domain != dirName {
		return fmt.Errorf("manifest domain %q does not match directory %q", manifest.Domain, dirName)
	}

	version, err := integration.ParseVersion(manifest.Version)
	if err != nil {
		return fmt.Errorf("version %q: %w", manifest.Version, err)
	}

	if _, err := os.Stat(filepath.Join(dir, "component.lua")); err != nil {
		cmd.Printf("warning: no component.lua in %s\n", dir)
	}

	cmd.Printf("%s is valid (version %s, %s)\n", manifest.Domain, version, version.Strategy())
	return nil
}
