package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wsmount/wsmount/internal/catalog"
	"github.com/wsmount/wsmount/internal/config"
	"github.com/wsmount/wsmount/internal/handler"
	"github.com/wsmount/wsmount/internal/metrics"
	"github.com/wsmount/wsmount/internal/planner"
	"github.com/wsmount/wsmount/internal/platform"
	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/status"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// app holds what every subcommand needs: configuration, logging and access
// to the host.
type app struct {
	cfg      *config.Configuration
	logger   *utils.StructuredLogger
	runner   process.Runner
	platform platform.Platform
	stdout   io.Writer
	// prober overrides the S3-backed directory prober.
	prober catalog.DirectoryProber
}

// newApp loads configuration and builds the logger. A nil runner runs real
// subprocesses.
func newApp(flags commonFlags, runner process.Runner) (*app, error) {
	cfg, err := loadConfiguration(flags)
	if err != nil {
		return nil, err
	}

	loggerConfig, err := cfg.LoggerConfig()
	if err != nil {
		return nil, err
	}
	logger, err := utils.NewStructuredLogger(loggerConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to create logger").
			WithComponent("cli")
	}

	if runner == nil {
		runner = process.NewExecRunner(logger)
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		runner:   runner,
		platform: platform.Detect(),
		stdout:   os.Stdout,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Close()
}

// diagnose writes the full context of a failed command to the debug log and
// returns err unchanged.
func (a *app) diagnose(err error) error {
	var wsErr *errors.WSMountError
	if stderrors.As(err, &wsErr) {
		a.logger.Debug("Command failed", map[string]interface{}{
			"diagnostic": wsErr.DetailedDiagnostic(),
		})
	}
	return err
}

// loadConfiguration layers defaults, the config file, WSMOUNT_* variables
// and command-line overrides, then validates the result.
func loadConfiguration(flags commonFlags) (*config.Configuration, error) {
	cfg := config.NewDefault()

	path := flags.configPath
	if path == "" {
		if candidate, err := utils.ExpandHome("~/.wsmount/config.yaml"); err == nil {
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
			}
		}
	}
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if flags.catalogPath != "" {
		cfg.Catalog.File = flags.catalogPath
	}
	if flags.logLevel != "" {
		cfg.Global.LogLevel = strings.ToUpper(flags.logLevel)
	}
	if flags.rootDir != "" {
		cfg.Workspace.RootDir = flags.rootDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newPlanner wires the planner for one command. Probing S3 prefixes is only
// needed when mounting.
func (a *app) newPlanner(ctx context.Context, withProber bool) (*planner.Planner, *metrics.Collector, error) {
	root, err := a.cfg.RootDir()
	if err != nil {
		return nil, nil, err
	}
	catalogFile, err := a.cfg.CatalogFile()
	if err != nil {
		return nil, nil, err
	}

	collector, err := metrics.NewCollector(&a.cfg.Metrics)
	if err != nil {
		return nil, nil, err
	}

	deps := planner.Deps{
		Catalog:  catalog.NewRetrying(catalog.NewFileCatalog(catalogFile), a.cfg.Catalog.Retry, a.logger),
		Runner:   a.runner,
		Platform: a.platform,
		Handlers: &handler.Factory{
			Runner:        a.runner,
			Logger:        a.logger,
			GcsFuseBinary: a.cfg.Mount.GcsFuseBinary,
			S3FuseBinary:  a.cfg.Mount.S3FuseBinary,
			ImplicitDirs:  a.cfg.Mount.ImplicitDirs,
			ReadOnly:      a.cfg.Mount.ReadOnly,
		},
		Metrics: collector,
		Logger:  a.logger,
	}
	if withProber {
		deps.Prober = a.directoryProber(ctx)
	}

	p, err := planner.New(planner.Config{
		RootDir:           root,
		FolderPropertyKey: a.cfg.Workspace.FolderPropertyKey,
		MaxFolderDepth:    a.cfg.Workspace.MaxFolderDepth,
		Parallelism:       a.cfg.Mount.Parallelism,
	}, deps)
	if err != nil {
		return nil, nil, err
	}
	return p, collector, nil
}

// directoryProber probes S3 prefixes through the S3 API and falls back to
// catalog hints when no AWS configuration can be loaded.
func (a *app) directoryProber(ctx context.Context) catalog.DirectoryProber {
	if a.prober != nil {
		return a.prober
	}
	s3Prober, err := catalog.NewS3Prober(ctx, a.cfg.S3, a.logger)
	if err != nil {
		a.logger.Warn("S3 prefix probing unavailable, using catalog hints", map[string]interface{}{
			"error": err.Error(),
		})
		return catalog.CloudProber{}
	}
	return catalog.CloudProber{S3: s3Prober}
}

func (a *app) writeMetrics(collector *metrics.Collector) {
	if err := collector.WriteTextfile(); err != nil {
		a.logger.Warn("Failed to write metrics", map[string]interface{}{
			"textfile": a.cfg.Metrics.Textfile,
			"error":    err.Error(),
		})
	}
}

func (a *app) mount(ctx context.Context, disableCache bool) error {
	p, collector, err := a.newPlanner(ctx, true)
	if err != nil {
		return err
	}
	defer a.writeMetrics(collector)

	report, err := p.MountAll(ctx, disableCache)
	if report != nil {
		printMountReport(a.stdout, report)
	}
	return err
}

func (a *app) unmount(ctx context.Context) error {
	p, collector, err := a.newPlanner(ctx, false)
	if err != nil {
		return err
	}
	defer a.writeMetrics(collector)

	report, err := p.UnmountAll(ctx)
	if report != nil {
		printUnmountReport(a.stdout, report)
	}
	return err
}

func (a *app) status(ctx context.Context, asJSON bool) error {
	p, _, err := a.newPlanner(ctx, false)
	if err != nil {
		return err
	}

	var mounts []types.MountEntry
	if p.WorkspaceDirExists() {
		mounts, err = p.ListMounts(ctx)
		if err != nil {
			return err
		}
	}

	report, err := status.Scan(p.Root(), mounts)
	if err != nil {
		return err
	}
	if asJSON {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.stdout, string(data))
		return err
	}
	return report.WriteTable(a.stdout)
}

func relativeTo(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}

func printMountReport(w io.Writer, report *planner.MountReport) {
	for _, res := range report.Results {
		name := relativeTo(report.Root, res.Path)
		switch {
		case res.Skipped:
			continue
		case res.AlreadyMounted:
			fmt.Fprintf(w, "already mounted  %s\n", name)
		case res.State == types.StateMounted:
			fmt.Fprintf(w, "mounted          %s\n", name)
		case res.Reason != types.FailureNone:
			fmt.Fprintf(w, "failed (%s)  %s\n", res.Reason, name)
		default:
			fmt.Fprintf(w, "failed           %s\n", name)
		}
	}
	for _, id := range report.InvalidFolders {
		fmt.Fprintf(w, "invalid folder   %s\n", id)
	}
	fmt.Fprintf(w, "%d mounted, %d failed, %d skipped under %s\n",
		len(report.Mounted()), len(report.Failed()), len(report.Skipped()), report.Root)
}

func printUnmountReport(w io.Writer, report *planner.UnmountReport) {
	for _, path := range report.Busy {
		fmt.Fprintf(w, "busy       %s\n", relativeTo(report.Root, path))
	}
	for _, path := range report.NotEmpty {
		fmt.Fprintf(w, "not empty  %s\n", relativeTo(report.Root, path))
	}
	fmt.Fprintf(w, "%d unmounted, %d busy, %d directories removed under %s\n",
		len(report.Unmounted), len(report.Busy), len(report.Pruned), report.Root)
}
