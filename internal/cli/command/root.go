package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/libresprite/recovery/internal/cli/output"
	"github.com/libresprite/recovery/internal/config"
	"github.com/libresprite/recovery/internal/infra/buildinfo"
	"github.com/libresprite/recovery/internal/storage/session"
	"github.com/libresprite/recovery/internal/telemetry/logger"
)

const (
	metaConfig = "config"
	metaFormat = "format"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "recoveryctl",
		Usage:   "Inspect, restore and clean up crash recovery sessions",
		Version: buildinfo.Get().Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			SessionsCommand(),
			BackupCommand(),
			WatchCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before:   setup,
		Metadata: map[string]any{},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (YAML)",
			EnvVars: []string{config.EnvPrefix + "CONFIG"},
		},
		&cli.StringFlag{
			Name:    "root",
			Aliases: []string{"r"},
			Usage:   "Backup root directory (overrides recovery.backup_root)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json",
		},
	}
}

func setup(c *cli.Context) error {
	overrides := map[string]any{}
	if root := c.String("root"); root != "" {
		overrides["recovery.backup_root"] = root
	}
	if c.Bool("verbose") {
		overrides["log.level"] = "debug"
	}
	if f := c.String("log-format"); f != "" {
		overrides["log.format"] = f
	}

	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	l, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     c.App.ErrWriter,
		RedactHome: true,
	})
	if err != nil {
		return err
	}

	logger.SetDefault(l)

	c.Context = logger.WithLogger(c.Context, l)
	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaFormat] = format
	return nil
}

func getConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func getLogger(c *cli.Context) logger.Logger {
	return logger.FromContext(c.Context)
}

func stdout(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func stderr(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// render writes data in the format selected by --output.
func render(c *cli.Context, data any) error {
	format, _ := c.App.Metadata[metaFormat].(output.Format)
	return output.NewFormatter(format, c.Bool("wide")).Format(stdout(c), data)
}

// openSession returns a handle for the named session under the root.
func openSession(c *cli.Context, name string) (*session.Session, error) {
	if name == "" {
		return nil, errors.New("session name required")
	}
	if _, _, ok := session.ParseName(name); !ok {
		return nil, fmt.Errorf("invalid session name %q", name)
	}
	cfg := getConfig(c)
	path := filepath.Join(cfg.Recovery.BackupRoot, name)
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("session %s not found in %s", name, cfg.Recovery.BackupRoot)
	}
	return session.New(path,
		session.WithProber(newProber()),
		session.WithLogger(getLogger(c).Slog()),
	), nil
}
