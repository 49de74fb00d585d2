// Package cli builds the cobra commands shared by the strict-tree-sync
// binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/strict-tree-sync/internal/config"
	"github.com/yuya-takeyama/strict-tree-sync/internal/fsys"
	"github.com/yuya-takeyama/strict-tree-sync/internal/objstore"
	"github.com/yuya-takeyama/strict-tree-sync/internal/retry"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/job"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/logger"
	"github.com/yuya-takeyama/strict-tree-sync/pkg/walker"
)

// Exit codes.
const (
	ExitClean    = 0
	ExitMismatch = 1
	ExitFatal    = 2
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code. Errors that are
// not ExitErrors are fatal.
func ExitCode(err error) int {
	if err == nil {
		return ExitClean
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFatal
}

// Flags are the settings that never come from the config file.
type Flags struct {
	ConfigFile     string
	EnvFile        string
	Quiet          bool
	ResultJSONFile string
	Excludes       []string
	IncludeDirs    bool
}

// AddFlags registers the persistent flags on cmd. Flags named in
// config.FlagKeys are bound to config keys when the command runs.
func AddFlags(cmd *cobra.Command, f *Flags) {
	d := config.Default()
	fs := cmd.PersistentFlags()

	fs.StringVar(&f.ConfigFile, "config", "", "Path to a config file (yaml, toml or json)")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "Path to a .env file loaded before reading the environment")
	fs.BoolVar(&f.Quiet, "quiet", false, "Only print transfers, failures and a summary when something failed")
	fs.StringVar(&f.ResultJSONFile, "result-json-file", "", "Path to output result as JSON file")
	fs.StringSliceVar(&f.Excludes, "exclude", nil, "Exclude patterns matched against relative paths (multiple allowed)")
	fs.BoolVar(&f.IncludeDirs, "include-dirs", false, "Compare empty-directory entries as well as files")

	fs.String("provider", d.ObjectStore.Provider, "Object store provider: aws or minio")
	fs.String("region", d.ObjectStore.Region, "Object store region (discovered per bucket if empty)")
	fs.String("profile", d.ObjectStore.Profile, "AWS profile to use")
	fs.String("endpoint", d.ObjectStore.Endpoint, "Object store endpoint URL")
	fs.String("hdfs-namenode", d.HDFS.Namenode, "Namenode for hdfs:/// paths without an authority")
	fs.String("hdfs-user", d.HDFS.User, "HDFS user name")

	fs.Int("queue-depth", d.Executor.QueueDepth, "Pending pairs queued per group before submission blocks")
	fs.Int("workers", d.Executor.Workers, "Concurrent workers per group")
	fs.Int("chunk-size-mb", d.Executor.ChunkSizeMB, "Multipart threshold and chunk size in MiB")
	fs.Bool("multipart", d.Executor.Multipart, "Split files above the chunk size into chunks")
	fs.Bool("checksum", d.Executor.Checksum, "Verify content checksums")
	fs.Int("max-attempts", d.Executor.MaxAttempts, "Attempts per backend call before a pair fails")
	fs.Duration("attempt-timeout", d.Executor.AttemptTimeout, "Wall-clock cap per attempt (0 for none)")
	fs.Duration("retry-base-delay", d.Executor.RetryBaseDelay, "Initial retry backoff (0 retries immediately)")

	fs.Int("groups", d.Partition.Groups, "Number of balanced groups")
	fs.Int64("unit-weight", d.Partition.UnitWeight, "Per-entry weight added to byte volume when balancing")
	fs.Int("parallelism", d.Partition.Parallelism, "Groups executed at once in-process")
	fs.String("staging-dir", d.Staging.Dir, "Backend-qualified directory for staged groups")

	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "Log format: text or json")
}

// Env is everything a command needs once flags are parsed.
type Env struct {
	Config       *config.Config
	Flags        *Flags
	Logger       logger.Logger
	ObjectStores objstore.Factory
	FileSystems  fsys.Factory
	Stdout       io.Writer
}

// Setup loads configuration, installs logging and builds the backend
// factories.
func Setup(cmd *cobra.Command, f *Flags) (*Env, error) {
	cfg, err := config.Load(config.Options{
		EnvFile:    f.EnvFile,
		ConfigFile: f.ConfigFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	if _, err := logger.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}

	objectStores, err := objstore.NewFactory(cfg.ObjectStore.ObjectStore())
	if err != nil {
		return nil, err
	}

	var lg logger.Logger = &logger.VerboseLogger{Log: slog.Default()}
	if f.Quiet {
		lg = &logger.QuietLogger{Out: cmd.OutOrStdout()}
	}
	return &Env{
		Config:       cfg,
		Flags:        f,
		Logger:       lg,
		ObjectStores: objectStores,
		FileSystems:  fsys.NewFactory(cfg.HDFS.FileSystem()),
		Stdout:       cmd.OutOrStdout(),
	}, nil
}

// JobOptions converts the loaded configuration into job options.
func (e *Env) JobOptions(src, dest string) job.Options {
	c := e.Config
	policy := retry.Policy{
		MaxAttempts:    c.Executor.MaxAttempts,
		BaseDelay:      c.Executor.RetryBaseDelay,
		AttemptTimeout: c.Executor.AttemptTimeout,
	}
	return job.Options{
		Src:         src,
		Dest:        dest,
		Excludes:    e.Flags.Excludes,
		IncludeDirs: e.Flags.IncludeDirs,
		Groups:      c.Partition.Groups,
		UnitWeight:  c.Partition.UnitWeight,
		Parallelism: c.Partition.Parallelism,
		StagingDir:  c.Staging.Dir,
		Walk: walker.Options{
			Retry: retry.Policy{
				BaseDelay:      c.Executor.RetryBaseDelay,
				AttemptTimeout: c.Executor.AttemptTimeout,
			},
			Workers: c.Executor.Workers,
		},
		Executor: executor.Options{
			Workers:    c.Executor.Workers,
			QueueDepth: c.Executor.QueueDepth,
			ChunkSize:  c.Executor.ChunkSize(),
			Multipart:  c.Executor.Multipart,
			Checksum:   c.Executor.Checksum,
			Retry:      policy,
		},
		Logger: e.Logger,
	}
}

// Job builds a job for the given paths.
func (e *Env) Job(opts job.Options) *job.Job {
	return job.New(e.ObjectStores, e.FileSystems, opts)
}

// Finish prints the summary, writes the result JSON when requested and turns
// a non-zero failure count into ExitMismatch.
func (e *Env) Finish(report *job.Report) error {
	logger.PrintSummary(e.Stdout, report.Summary(), e.Flags.Quiet)

	if e.Flags.ResultJSONFile != "" {
		if err := report.WriteJSON(e.Flags.ResultJSONFile); err != nil {
			return fmt.Errorf("failed to write result JSON: %w", err)
		}
	}

	if n := report.FailureCount(); n > 0 {
		slog.Error("run finished with mismatches or failures", "mode", report.Mode, "count", n)
		return &ExitError{Code: ExitMismatch, Err: fmt.Errorf("%d mismatches or failures", n)}
	}
	slog.Info("run finished clean", "mode", report.Mode, "duration", report.Duration.Round(time.Millisecond).String())
	return nil
}

// ParseMode accepts copy and verify.
func ParseMode(s string) (executor.Mode, error) {
	switch executor.Mode(s) {
	case executor.ModeCopy, executor.ModeVerify:
		return executor.Mode(s), nil
	default:
		return "", fmt.Errorf("%w: mode must be %q or %q, got %q", job.ErrConfig, executor.ModeCopy, executor.ModeVerify, s)
	}
}

// Execute runs root with a context cancelled on interrupt and exits with the
// mapped code.
func Execute(ctx context.Context, root *cobra.Command) {
	root.SilenceUsage = true
	root.SilenceErrors = true
	err := root.ExecuteContext(ctx)
	if err != nil {
		var ee *ExitError
		if !errors.As(err, &ee) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(ExitCode(err))
}
