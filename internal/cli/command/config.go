package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/libresprite/recovery/internal/cli/output"
	"github.com/libresprite/recovery/internal/config"
)

// ConfigCommand returns the config command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration (file, environment and flags merged)",
				Action: runConfigShow,
			},
			{
				Name:      "test",
				Usage:     "Test a configuration file",
				ArgsUsage: "FILE",
				Action:    runConfigTest,
			},
		},
	}
}

func runConfigShow(c *cli.Context) error {
	cfg := config.Sanitize(getConfig(c))
	format, _ := c.App.Metadata[metaFormat].(output.Format)
	if format == output.FormatTable {
		// Nested sections do not fit a table.
		format = output.FormatYAML
	}
	return output.NewFormatter(format, false).Format(stdout(c), cfg)
}

func runConfigTest(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("configuration file required")
	}
	if _, err := config.Load(path, nil); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(stdout(c), "Configuration %s is valid\n", path)
	return nil
}
