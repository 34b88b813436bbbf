package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/indexkit/switchstore/internal/apperrors"
	"github.com/indexkit/switchstore/internal/archive"
	"github.com/indexkit/switchstore/internal/inspect"
	"github.com/indexkit/switchstore/internal/segment"
	"github.com/indexkit/switchstore/internal/store"
	"github.com/indexkit/switchstore/internal/version"
)

const (
	// Default ports.
	defaultInspectPort = 8080

	// defaultVerifyJobs bounds parallel segment verification.
	defaultVerifyJobs = 4
)

var (
	// konfig is the global koanf instance.
	konfig = koanf.New(".")
)

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// LogFormat represents the log output format.
type LogFormat string

const (
	// LogFormatText is the human-readable text format (default).
	LogFormatText LogFormat = "text"
	// LogFormatJSON is the JSON-formatted structured logs.
	LogFormatJSON LogFormat = "json"
)

// rawLogFormat reads the log format setting. The koanf store is only
// populated once the root Before hook has run, so fall back to the
// environment variable directly.
func rawLogFormat() string {
	if val := konfig.String("log.format"); val != "" {
		return val
	}
	return os.Getenv("SWS_LOG_FORMAT")
}

// getLogFormat returns the configured log format.
func getLogFormat() LogFormat {
	switch strings.ToLower(rawLogFormat()) {
	case "json":
		return LogFormatJSON
	case "text", "":
		return LogFormatText
	default:
		// Invalid format - will warn after logger is set up
		return LogFormatText
	}
}

// setupLogging configures the global logger based on the verbose flag and SWS_LOG_FORMAT.
func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}

	format := getLogFormat()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	// Warn about invalid format after logger is set up
	raw := strings.ToLower(rawLogFormat())
	if raw != "" && raw != "text" && raw != "json" {
		slog.Warn("Invalid SWS_LOG_FORMAT value, using text format", "value", raw)
	}

	if level == slog.LevelDebug {
		slog.Debug("Verbose logging enabled")
	}
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "switchstore",
		Usage:   "Route files between two stores by file name extension",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "primary",
				Usage:   "Primary store root directory",
				Sources: cli.EnvVars("SWS_PRIMARY"),
			},
			&cli.StringFlag{
				Name:    "secondary",
				Usage:   "Secondary store root directory",
				Sources: cli.EnvVars("SWS_SECONDARY"),
			},
			&cli.StringFlag{
				Name:    "extensions",
				Usage:   "Comma-separated extension set routed by the composite",
				Value:   "fdt,fdx,fdm",
				Sources: cli.EnvVars("SWS_EXTENSIONS"),
			},
			&cli.BoolFlag{
				Name:    "primary-owns",
				Usage:   "Route extension set members to the primary store",
				Value:   true,
				Sources: cli.EnvVars("SWS_PRIMARY_OWNS"),
			},
			&cli.StringFlag{
				Name:    "write-rate-limit",
				Usage:   "Throttle store writes to this many bytes per second (accepts KB/MB/GB suffixes)",
				Sources: cli.EnvVars("SWS_WRITE_RATE_LIMIT"),
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			// Load environment variables with SWS_ prefix
			if err := konfig.Load(env.Provider(".", env.Opt{
				Prefix: "SWS_",
			}), nil); err != nil {
				return ctx, fmt.Errorf("load env: %w", err)
			}

			return ctx, nil
		},
		Commands: []*cli.Command{
			lsCommand(),
			importCommand(),
			packCommand(),
			catCommand(),
			segmentsCommand(),
			verifyCommand(),
			pendingCommand(),
			snapshotCommand(),
			serveCommand(),
			versionCommand(),
		},
	}
}

// lsCommand creates the ls subcommand.
func lsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ls",
		Usage: "List all files across both stores",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "route",
				Usage: "Only show files routed to this store (primary or secondary)",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st, err := openSwitchStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(st)

			names, err := st.ListAll(ctx)
			if err != nil {
				return fmt.Errorf("list files: %w", err)
			}
			sort.Strings(names)

			routeFilter := cmd.String("route")

			var files []fileEntry
			var total int64
			for _, name := range names {
				route := st.RouteOf(name)
				if routeFilter != "" && route != routeFilter {
					continue
				}

				length, err := st.FileLength(ctx, name)
				if err != nil {
					return fmt.Errorf("file length of %s: %w", name, err)
				}

				files = append(files, fileEntry{Name: name, Route: route, Length: length})
				total += length
			}

			displayFileList(files, total)

			return nil
		},
	}
}

// importCommand creates the import subcommand.
//
//nolint:funlen // CLI command with many flags
func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Copy local files into the composite store",
		ArgsUsage: "<file> [file...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "max-size",
				Usage: "Reject files larger than this size (accepts KB/MB/GB suffixes)",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return apperrors.ErrFileNameRequired
			}

			// Parse the size limit up front
			var maxSize int64
			if maxStr := cmd.String("max-size"); maxStr != "" {
				var err error
				maxSize, err = parseSize(maxStr)
				if err != nil {
					return fmt.Errorf("invalid max-size: %w", err)
				}
			}

			st, err := openSwitchStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(st)

			imported := make([]string, 0, cmd.Args().Len())
			for _, path := range cmd.Args().Slice() {
				name := filepath.Base(path)

				size, err := importFile(ctx, st, path, name, maxSize)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}

				displayImported(name, st.RouteOf(name), size)
				imported = append(imported, name)
			}

			// Make the imported files durable before reporting success
			if err := st.Sync(ctx, imported); err != nil {
				return fmt.Errorf("sync imported files: %w", err)
			}

			slog.Info("import finished", "files", len(imported))

			return nil
		},
	}
}

// packCommand creates the pack subcommand.
//
//nolint:funlen // CLI command with many flags
func packCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Write local files as records into a new segment",
		ArgsUsage: "<segment> <file> [file...]",
		Flags: []cli.Flag{
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return apperrors.ErrSegmentNameRequired
			}
			if cmd.Args().Len() < 2 {
				return apperrors.ErrFileNameRequired
			}
			segName := cmd.Args().Get(0)
			paths := cmd.Args().Slice()[1:]

			st, err := openSwitchStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(st)

			w, err := segment.NewWriter(ctx, st, segName, segment.WithLogger(slog.Default()))
			if err != nil {
				return fmt.Errorf("create segment %s: %w", segName, err)
			}

			// One record per file, in argument order
			for _, path := range paths {
				data, err := os.ReadFile(path)
				if err != nil {
					_ = w.Abort(ctx)
					return fmt.Errorf("read %s: %w", path, err)
				}
				if err := w.Add(data); err != nil {
					_ = w.Abort(ctx)
					return fmt.Errorf("add %s: %w", path, err)
				}
			}

			meta, err := w.Commit(ctx)
			if err != nil {
				return fmt.Errorf("commit segment %s: %w", segName, err)
			}

			displayPacked(segName, meta.RecordCount, meta.DataLength+meta.IndexLength)

			return nil
		},
	}
}

// catCommand creates the cat subcommand.
func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "Write a stored file to standard output",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return apperrors.ErrFileNameRequired
			}
			name := cmd.Args().Get(0)

			st, err := openSwitchStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(st)

			in, err := st.OpenInput(ctx, name)
			if err != nil {
				return fmt.Errorf("open %s: %w", name, err)
			}
			defer func() { _ = in.Close() }()

			if _, err := io.Copy(os.Stdout, in); err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}

			return nil
		},
	}
}

// segmentsCommand creates the segments subcommand.
func segmentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "segments",
		Usage: "List committed segments with record counts",
		Flags: []cli.Flag{
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st, err := openSwitchStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(st)

			names, err := segment.List(ctx, st)
			if err != nil {
				return fmt.Errorf("list segments: %w", err)
			}

			entries := make([]segmentEntry, 0, len(names))
			for _, name := range names {
				meta, err := segment.ReadMetadata(ctx, st, name)
				if err != nil {
					return fmt.Errorf("read metadata of %s: %w", name, err)
				}

				entries = append(entries, segmentEntry{
					Name:      name,
					Records:   meta.RecordCount,
					Bytes:     meta.DataLength + meta.IndexLength,
					WrittenAt: meta.WrittenAt,
				})
			}

			displaySegments(entries)

			return nil
		},
	}
}

// verifyCommand creates the verify subcommand.
//
//nolint:funlen // CLI command with many flags
func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify segment checksums against their metadata",
		ArgsUsage: "[segment...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Number of segments to verify in parallel",
				Value:   defaultVerifyJobs,
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st, err := openSwitchStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(st)

			// Without arguments every committed segment is verified
			names := cmd.Args().Slice()
			if len(names) == 0 {
				names, err = segment.List(ctx, st)
				if err != nil {
					return fmt.Errorf("list segments: %w", err)
				}
			}

			jobs := cmd.Int("jobs")
			if jobs < 1 {
				jobs = 1
			}

			results := make([]verifyEntry, len(names))

			eg, egCtx := errgroup.WithContext(ctx)
			eg.SetLimit(jobs)
			for i, name := range names {
				eg.Go(func() error {
					results[i] = verifyEntry{Name: name, Err: segment.Verify(egCtx, st, name)}
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				return err
			}

			displayVerifyResults(results)

			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", apperrors.ErrVerificationFailed, failed, len(names))
			}

			return nil
		},
	}
}

// pendingCommand creates the pending subcommand.
func pendingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "List files deleted while still open for reading",
		Flags: []cli.Flag{
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st, err := openSwitchStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(st)

			pending, err := st.PendingDeletions(ctx)
			if err != nil {
				return fmt.Errorf("pending deletions: %w", err)
			}

			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)

			displayPendingDeletions(names)

			return nil
		},
	}
}

// snapshotCommand creates the snapshot subcommand.
//
//nolint:funlen // CLI command with many flags
func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Commit the snapshot repository and push if a remote is configured",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "Snapshot repository path",
				Sources: cli.EnvVars("SWS_SNAPSHOT_REPO"),
			},
			&cli.StringFlag{
				Name:    "message",
				Aliases: []string{"m"},
				Usage:   "Commit message",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Only test the connection to the remote repository",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := archive.LoadSnapshotConfigFromEnv()
			cfg.RepoPath = cmd.String("repo")

			// Connection check only
			if cmd.Bool("check") {
				if err := cfg.TestConnection(ctx); err != nil {
					return fmt.Errorf("connection check: %w", err)
				}

				displayConnectionOK(cfg.URL)

				return nil
			}

			archiver, err := archive.NewArchiver(cfg, archive.WithLogger(slog.Default()))
			if err != nil {
				return err
			}

			hash, err := archiver.Snapshot(ctx, cmd.String("message"))
			if errors.Is(err, apperrors.ErrNoChanges) {
				displayNoChanges()
				return nil
			}
			if err != nil {
				return fmt.Errorf("snapshot: %w", err)
			}

			displaySnapshotResult(hash, cfg.IsPushEnabled())

			return nil
		},
	}
}

// serveCommand creates the serve subcommand.
//
//nolint:funlen // CLI command with many flags
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP inspection server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP port to listen on",
				Value:   defaultInspectPort,
				Sources: cli.EnvVars("SWS_INSPECT_PORT"),
			},
			&cli.DurationFlag{
				Name:    "snapshot-delay",
				Usage:   "Debounce delay before automatic snapshots",
				Sources: cli.EnvVars("SWS_SNAPSHOT_DELAY"),
			},
			&cli.StringFlag{
				Name:    "snapshot-repo",
				Usage:   "Snapshot repository path (enables automatic snapshots)",
				Sources: cli.EnvVars("SWS_SNAPSHOT_REPO"),
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd)
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st, err := openSwitchStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(st)

			srvCfg := inspect.LoadConfigFromEnv()
			if port := cmd.Int("port"); port > 0 {
				srvCfg.Port = port
			}
			if delay := cmd.Duration("snapshot-delay"); delay > 0 {
				srvCfg.SnapshotDelay = delay
			}

			// Snapshots are optional; the server runs without them
			var worker *inspect.SnapshotWorker
			if repoPath := cmd.String("snapshot-repo"); repoPath != "" {
				snapCfg := archive.LoadSnapshotConfigFromEnv()
				snapCfg.RepoPath = repoPath

				archiver, err := archive.NewArchiver(snapCfg, archive.WithLogger(slog.Default()))
				if err != nil {
					return err
				}

				worker = inspect.NewSnapshotWorker(archiver, slog.Default(),
					inspect.WithSnapshotDelay(srvCfg.SnapshotDelay))
			} else {
				slog.Warn("snapshot repository not configured, snapshots disabled")
			}

			srv := inspect.NewServer(srvCfg, st, slog.Default(), worker)

			return srv.Start(ctx)
		},
	}
}

// versionCommand creates the version subcommand.
func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(_ context.Context, _ *cli.Command) error {
			displayVersion()
			return nil
		},
	}
}

// resolveSwitchConfig builds the composite store configuration from the root
// flags, which fall back to the SWS_* environment variables.
func resolveSwitchConfig(cmd *cli.Command) (*store.SwitchConfig, error) {
	cfg := &store.SwitchConfig{
		PrimaryPath:           cmd.String("primary"),
		SecondaryPath:         cmd.String("secondary"),
		Extensions:            store.ParseExtensions(cmd.String("extensions")),
		PrimaryOwnsExtensions: cmd.Bool("primary-owns"),
	}

	if rateStr := cmd.String("write-rate-limit"); rateStr != "" {
		rate, err := parseSize(rateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid write-rate-limit: %w", err)
		}
		cfg.WriteRateLimit = float64(rate)
	}

	if !cfg.IsValid() {
		return nil, apperrors.ErrStorePathRequired
	}

	return cfg, nil
}

// openSwitchStore builds the composite store from the root flags.
func openSwitchStore(cmd *cli.Command) (*store.SwitchStore, error) {
	cfg, err := resolveSwitchConfig(cmd)
	if err != nil {
		return nil, err
	}

	st, err := cfg.Build(store.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	slog.Info("composite store",
		"primary", cfg.PrimaryPath,
		"secondary", cfg.SecondaryPath,
		"extensions", strings.Join(cfg.Extensions, ","),
		"primary_owns", cfg.PrimaryOwnsExtensions)

	return st, nil
}

// closeStore closes the composite store, logging any error.
func closeStore(st *store.SwitchStore) {
	if err := st.Close(); err != nil {
		slog.Error("close stores", "error", err)
	}
}

// importFile copies one local file into the store under the given name.
func importFile(ctx context.Context, st store.Store, path, name string, maxSize int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	if maxSize > 0 {
		info, err := f.Stat()
		if err != nil {
			return 0, err
		}
		if info.Size() > maxSize {
			return 0, fmt.Errorf("%w: %s is %s, limit %s",
				apperrors.ErrMaxFileSizeExceeded, name, formatBytes(info.Size()), formatBytes(maxSize))
		}
	}

	out, err := st.CreateOutput(ctx, name)
	if err != nil {
		return 0, err
	}

	size, err := io.Copy(out, f)
	if err != nil {
		_ = out.Close()
		return 0, err
	}

	if err := out.Close(); err != nil {
		return 0, err
	}

	return size, nil
}

// parseSize parses a human-readable byte size such as "512", "64KB" or "1.5MB".
func parseSize(val string) (int64, error) {
	val = strings.ToUpper(strings.TrimSpace(val))

	// Plain integer means bytes
	if size, err := strconv.ParseInt(val, 10, 64); err == nil {
		return size, nil
	}

	units := []struct {
		suffix     string
		multiplier float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, unit := range units {
		numStr, found := strings.CutSuffix(val, unit.suffix)
		if !found {
			continue
		}

		num, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
		if err != nil {
			break
		}

		return int64(num * unit.multiplier), nil
	}

	return 0, fmt.Errorf("unrecognized size %q", val)
}
