package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgscrape/internal/config"
)

//go:embed templates/imgscrape.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new imgscrape configuration file",
		Long: `Initialize creates a new .imgscrape configuration file in the current directory.

The generated file includes:
- A defaults block applied to every site
- Commented examples for site-specific cookies, headers and patterns

Examples:
  # Create .imgscrape in current directory
  imgscrape init

  # Create config file at a specific path
  imgscrape init -o myconfig.yaml

  # Force overwrite existing file
  imgscrape init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/imgscrape.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	printDone(out, "Created configuration file: %s", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure site-specific settings such as:")
	fmt.Fprintln(out, "  - Cookies and headers for sites that need a login")
	fmt.Fprintln(out, "  - Crawl depth per site")
	fmt.Fprintln(out, "  - Page patterns to ignore or follow")
	fmt.Fprintln(out, "  - An image URL filter per site")
	return nil
}
