package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/libresprite/recovery/internal/cli/output"
	"github.com/libresprite/recovery/internal/doc"
	"github.com/libresprite/recovery/internal/storage/codec"
	"github.com/libresprite/recovery/internal/telemetry/logger"
)

// BackupCommand returns the backup command.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:    "backup",
		Aliases: []string{"b"},
		Usage:   "Restore or delete single document backups",
		Subcommands: []*cli.Command{
			{
				Name:      "restore",
				Usage:     "Restore a backup and export its frames as PNG",
				ArgsUsage: "SESSION KEY",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"d"},
						Usage:   "Output directory",
						Value:   ".",
					},
					&cli.StringFlag{
						Name:  "raw",
						Usage: "Ignore the header and rebuild from raw images laid out as frames or layers",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Base name of the exported files (default: document file name)",
					},
				},
				Action: runBackupRestore,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete one backup and keep the session",
				ArgsUsage: "SESSION KEY",
				Action:    runBackupDelete,
			},
		},
	}
}

type restoreResult struct {
	Session     string   `json:"session" yaml:"session"`
	Key         string   `json:"key" yaml:"key"`
	Description string   `json:"description" yaml:"description"`
	Files       []string `json:"files" yaml:"files"`
}

func runBackupRestore(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected SESSION KEY, got %d arguments", c.NArg())
	}
	s, err := openSession(c, c.Args().Get(0))
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.Backup(c.Args().Get(1))
	if err != nil {
		return err
	}

	var d *doc.Document
	if c.IsSet("raw") {
		as, err := codec.ParseRawImagesAs(c.String("raw"))
		if err != nil {
			return err
		}
		d, err = s.RestoreRawImages(b, as)
		if err != nil {
			return err
		}
	} else {
		d, err = s.RestoreBackup(b)
		if err != nil {
			return err
		}
	}

	dir := c.String("out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	name := c.String("name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(d.Filename()), filepath.Ext(d.Filename()))
	}
	if name == "" || name == "." {
		name = b.Key()
	}

	progress := output.NewProgressBar(stderr(c), "Exporting "+b.Key(), output.UnitCount)
	files, err := output.ExportPNG(dir, name, d, progress)
	if err != nil {
		return err
	}

	ctx := logger.WithDocument(logger.WithSession(c.Context, s.Name()), b.Key())
	logger.L(ctx).Info("backup restored", "files", len(files), "dir", dir)
	return render(c, restoreResult{
		Session:     s.Name(),
		Key:         b.Key(),
		Description: b.Description(),
		Files:       files,
	})
}

func runBackupDelete(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected SESSION KEY, got %d arguments", c.NArg())
	}
	s, err := openSession(c, c.Args().Get(0))
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.Backup(c.Args().Get(1))
	if err != nil {
		return err
	}
	if err := s.DeleteBackup(b); err != nil {
		return err
	}
	logger.L(logger.WithDocument(logger.WithSession(c.Context, s.Name()), b.Key())).Debug("backup deleted")
	fmt.Fprintf(stdout(c), "Deleted backup %s from %s\n", b.Key(), s.Name())
	return nil
}
