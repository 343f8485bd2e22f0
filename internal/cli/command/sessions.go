package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/libresprite/recovery/internal/infra/liveness"
	"github.com/libresprite/recovery/internal/recovery"
	"github.com/libresprite/recovery/internal/storage/session"
	"github.com/libresprite/recovery/internal/telemetry/logger"
)

// newProber is replaced in tests.
var newProber = liveness.New

// SessionsCommand returns the sessions command.
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"session", "s"},
		Usage:   "Inspect and clean up recovery sessions",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List sessions under the backup root, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "state",
						Usage: "Only show sessions in this state (crashed, running, empty, expired, corrupt)",
					},
				},
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show the backups of a session",
				ArgsUsage: "SESSION",
				Action:    runSessionsShow,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a session directory",
				ArgsUsage: "SESSION",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Delete even if the owning process is running",
					},
				},
				Action: runSessionsDelete,
			},
			{
				Name:  "prune",
				Usage: "Remove empty and expired sessions",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "retention-days",
						Usage: "Expire crashed sessions older than this (default: recovery.retention_days)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Only report what would be removed",
					},
				},
				Action: runSessionsPrune,
			},
		},
	}
}

type sessionRow struct {
	Name      string    `json:"name" yaml:"name"`
	PID       int       `json:"pid" yaml:"pid"`
	State     string    `json:"state" yaml:"state"`
	Created   time.Time `json:"created" yaml:"created"`
	Backups   int       `json:"backups" yaml:"backups"`
	SizeBytes int64     `json:"size_bytes" yaml:"size_bytes" table:"-"`
	Size      string    `json:"-" yaml:"-"`
	Path      string    `json:"path" yaml:"path" table:"wide"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty" table:"wide"`
}

func newSessionRow(e recovery.Entry) sessionRow {
	s := e.Session
	row := sessionRow{
		Name:    s.Name(),
		PID:     e.PID,
		State:   string(e.State),
		Created: s.CreatedAt(),
		Path:    s.Path(),
	}
	if e.Err != nil {
		row.Error = e.Err.Error()
	}
	if e.Pruned {
		return row
	}
	if backups, err := s.Backups(); err == nil {
		row.Backups = len(backups)
	}
	if n, err := s.DiskUsage(); err == nil {
		row.SizeBytes = n
		row.Size = humanize.IBytes(uint64(n))
	}
	return row
}

// scanOptions returns read-only scan options for the configured root.
func scanOptions(c *cli.Context) recovery.ScanOptions {
	cfg := getConfig(c)
	return recovery.ScanOptions{
		RetentionDays: cfg.Recovery.RetentionDays,
		LockTimeout:   cfg.Recovery.LockTimeout,
		Prober:        newProber(),
		Logger:        getLogger(c).Slog(),
	}
}

func runSessionsList(c *cli.Context) error {
	cfg := getConfig(c)
	report, err := recovery.Scan(c.Context, cfg.Recovery.BackupRoot, scanOptions(c))
	if err != nil {
		return err
	}
	defer report.Close()

	filter := recovery.State(c.String("state"))
	rows := make([]sessionRow, 0, len(report.Entries))
	for _, e := range report.Entries {
		if filter != "" && e.State != filter {
			continue
		}
		rows = append(rows, newSessionRow(e))
	}
	if len(rows) == 0 && filter == "" {
		getLogger(c).Info("no sessions found", "root", cfg.Recovery.BackupRoot)
	}
	return render(c, rows)
}

type backupRow struct {
	Key         string    `json:"key" yaml:"key"`
	Description string    `json:"description" yaml:"description"`
	Generation  uint64    `json:"generation" yaml:"generation"`
	Modified    time.Time `json:"modified" yaml:"modified"`
	Age         string    `json:"-" yaml:"-"`
	SizeBytes   int64     `json:"size_bytes" yaml:"size_bytes" table:"-"`
	Size        string    `json:"-" yaml:"-"`
	Generations []uint64  `json:"generations" yaml:"generations" table:"wide"`
	Dir         string    `json:"dir" yaml:"dir" table:"wide"`
}

func newBackupRow(b *session.Backup) backupRow {
	return backupRow{
		Key:         b.Key(),
		Description: b.Description(),
		Generation:  b.Generation(),
		Modified:    b.ModTime(),
		Age:         humanize.Time(b.ModTime()),
		SizeBytes:   b.Size(),
		Size:        humanize.IBytes(uint64(b.Size())),
		Generations: b.Generations(),
		Dir:         b.Dir(),
	}
}

func runSessionsShow(c *cli.Context) error {
	s, err := openSession(c, c.Args().First())
	if err != nil {
		return err
	}
	defer s.Close()

	backups, err := s.Backups()
	if err != nil {
		return err
	}
	rows := make([]backupRow, 0, len(backups))
	for _, b := range backups {
		rows = append(rows, newBackupRow(b))
	}
	return render(c, rows)
}

func runSessionsDelete(c *cli.Context) error {
	s, err := openSession(c, c.Args().First())
	if err != nil {
		return err
	}

	if s.IsRunning() && !c.Bool("force") {
		pid, _ := s.PID()
		return fmt.Errorf("session %s belongs to running process %d (use --force)", s.Name(), pid)
	}
	if err := s.RemoveFromDisk(); err != nil {
		return err
	}
	logger.L(logger.WithSession(c.Context, s.Name())).Debug("session deleted", "path", s.Path())
	fmt.Fprintf(stdout(c), "Deleted session %s\n", s.Name())
	return nil
}

type pruneRow struct {
	Name    string    `json:"name" yaml:"name"`
	State   string    `json:"state" yaml:"state"`
	Created time.Time `json:"created" yaml:"created"`
	Removed bool      `json:"removed" yaml:"removed"`
}

func runSessionsPrune(c *cli.Context) error {
	cfg := getConfig(c)
	opts := scanOptions(c)
	if c.IsSet("retention-days") {
		days := c.Int("retention-days")
		if days < 0 {
			return errors.New("--retention-days must not be negative")
		}
		opts.RetentionDays = days
	}
	opts.Prune = !c.Bool("dry-run")

	report, err := recovery.Scan(c.Context, cfg.Recovery.BackupRoot, opts)
	if err != nil {
		return err
	}
	defer report.Close()

	var rows []pruneRow
	for _, e := range report.Entries {
		if e.State != recovery.StateEmpty && e.State != recovery.StateExpired {
			continue
		}
		rows = append(rows, pruneRow{
			Name:    e.Session.Name(),
			State:   string(e.State),
			Created: e.Session.CreatedAt(),
			Removed: e.Pruned,
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(stdout(c), "Nothing to prune")
		return nil
	}
	return render(c, rows)
}
