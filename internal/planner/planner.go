// Package planner mounts every mountable resource of a workspace under one
// root directory and tears those mounts down again.
//
// Mount points are laid out as root/<folder>/.../<resource>, following the
// workspace folder tree. Mount failures are visible in the tree itself
// through failure-suffixed directory names, so a user browsing the root can
// tell what went wrong without reading logs.
package planner

import (
	"context"
	"os"
	"path/filepath"

	"github.com/wsmount/wsmount/internal/catalog"
	"github.com/wsmount/wsmount/internal/folders"
	"github.com/wsmount/wsmount/internal/handler"
	"github.com/wsmount/wsmount/internal/metrics"
	"github.com/wsmount/wsmount/internal/platform"
	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// HandlerFactory creates the mount handler for a resource.
type HandlerFactory interface {
	NewHandler(resource types.Resource, mountPath string, disableCache bool) (handler.MountHandler, error)
}

// Unmounter unmounts one mount point.
type Unmounter interface {
	Unmount(ctx context.Context, path string) error
}

// Config holds planner settings.
type Config struct {
	// RootDir is the workspace directory every mount point lives under.
	RootDir string
	// FolderPropertyKey is the resource property naming the parent folder.
	FolderPropertyKey string
	// MaxFolderDepth bounds folder parent chains. Zero means no bound
	// beyond the number of folders.
	MaxFolderDepth int
	// Parallelism is the number of mounts run at once. Values below 2
	// mount one resource at a time.
	Parallelism int
}

// Deps are the collaborators of a Planner. Catalog and Runner are required.
type Deps struct {
	Catalog   catalog.Catalog
	Prober    catalog.DirectoryProber
	Runner    process.Runner
	Platform  platform.Platform
	Handlers  HandlerFactory
	Unmounter Unmounter
	Metrics   *metrics.Collector
	Logger    *utils.StructuredLogger
}

// Planner orchestrates mount and unmount passes over one workspace root.
type Planner struct {
	root        string
	folderKey   string
	parallelism int
	resolver    folders.Resolver

	catalog   catalog.Catalog
	prober    catalog.DirectoryProber
	runner    process.Runner
	platform  platform.Platform
	handlers  HandlerFactory
	unmounter Unmounter
	metrics   *metrics.Collector
	logger    *utils.StructuredLogger
}

// New creates a Planner. Missing optional dependencies get defaults: the
// catalog's directory hints for probing, the stock handler factory and an
// Unmounter for deps.Platform.
func New(cfg Config, deps Deps) (*Planner, error) {
	if cfg.RootDir == "" || !filepath.IsAbs(cfg.RootDir) {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig,
			"workspace root %q must be an absolute path", cfg.RootDir).
			WithComponent("planner")
	}
	if deps.Catalog == nil || deps.Runner == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "planner requires a catalog and a process runner").
			WithComponent("planner")
	}

	logger := deps.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if deps.Prober == nil {
		deps.Prober = catalog.HintProber{}
	}
	if deps.Handlers == nil {
		deps.Handlers = &handler.Factory{Runner: deps.Runner, Logger: logger}
	}
	if deps.Unmounter == nil {
		deps.Unmounter = handler.NewUnmounter(deps.Runner, deps.Platform, logger)
	}
	if deps.Metrics == nil {
		deps.Metrics, _ = metrics.NewCollector(&metrics.Config{Enabled: false})
	}

	key := cfg.FolderPropertyKey
	if key == "" {
		key = types.FolderPropertyKey
	}

	return &Planner{
		root:        filepath.Clean(cfg.RootDir),
		folderKey:   key,
		parallelism: cfg.Parallelism,
		resolver:    folders.Resolver{MaxDepth: cfg.MaxFolderDepth},
		catalog:     deps.Catalog,
		prober:      deps.Prober,
		runner:      deps.Runner,
		platform:    deps.Platform,
		handlers:    deps.Handlers,
		unmounter:   deps.Unmounter,
		metrics:     deps.Metrics,
		logger:      logger.WithComponent("planner"),
	}, nil
}

// Root returns the workspace root directory.
func (p *Planner) Root() string {
	return p.root
}

// WorkspaceDirExists reports whether the root exists and is a directory.
func (p *Planner) WorkspaceDirExists() bool {
	info, err := os.Stat(p.root)
	return err == nil && info.IsDir()
}

// FolderIDToPathMap resolves folder ids to paths relative to the root. It is
// pure: nothing is read from disk or cached.
func (p *Planner) FolderIDToPathMap(fs []types.Folder) folders.PathMap {
	return p.resolver.FolderIDToPathMap(fs)
}

// ResourceMountPath returns root/<folder path>/<resource name>, or
// root/<resource name> for a resource outside any folder. It is pure.
func (p *Planner) ResourceMountPath(r types.Resource, folderPaths folders.PathMap) (string, error) {
	pathErr := func(cause error, msg string) error {
		return errors.Wrap(cause, errors.ErrCodePathInvalid, msg).
			WithComponent("planner").
			WithOperation("resource_mount_path").
			WithContext("resource", r.Name)
	}

	if err := utils.ValidatePathComponent(r.Name); err != nil {
		return "", pathErr(err, "resource name cannot be used as a directory name")
	}

	elems := []string{}
	if folderID, ok := r.Property(p.folderKey); ok {
		folderPath, err := folderPaths.Path(folderID)
		if err != nil {
			return "", err
		}
		elems = append(elems, folderPath)
	}
	elems = append(elems, r.Name)

	path, err := utils.SecureJoin(p.root, elems...)
	if err != nil {
		return "", pathErr(err, "resource mount path escapes the workspace root")
	}
	return path, nil
}
