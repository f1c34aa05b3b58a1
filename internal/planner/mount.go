package planner

import (
	"context"
	stderrors "errors"
	"os"
	"sync"
	"time"

	"github.com/wsmount/wsmount/internal/folders"
	"github.com/wsmount/wsmount/internal/handler"
	"github.com/wsmount/wsmount/internal/metrics"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
)

// MountAll mounts every mountable resource of the workspace.
//
// The catalog is fetched before anything on disk changes; a catalog failure
// is returned as a fatal error and leaves the tree untouched. After that,
// each resource is handled independently: a resource that fails is recorded
// in the report and, where possible, marked on disk, and the rest continue.
// The returned error joins the per-resource errors that are not plain mount
// failures, such as directories that could not be created.
func (p *Planner) MountAll(ctx context.Context, disableCache bool) (*MountReport, error) {
	start := time.Now()

	resources, err := p.catalog.ListResources(ctx)
	if err != nil {
		return nil, p.fatal(err, "mount_all", "failed to list workspace resources")
	}
	fs, err := p.catalog.ListFolders(ctx)
	if err != nil {
		return nil, p.fatal(err, "mount_all", "failed to list workspace folders")
	}

	live, err := p.liveMounts(ctx)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeUnsupportedPlatform) {
			return nil, err
		}
		// Without the mount table every resource is mounted; the FUSE
		// utility reports targets that are already mounted.
		p.logger.Warn("Could not read mount table, assuming nothing is mounted", map[string]interface{}{
			"error": err.Error(),
		})
		live = map[string]bool{}
	}

	if err := os.MkdirAll(p.root, 0755); err != nil {
		e := errors.Wrap(err, errors.ErrCodeDirectoryCreate, "failed to create workspace directory").
			WithComponent("planner").
			WithOperation("mount_all").
			WithPath(p.root)
		e.Fatal = true
		return nil, e
	}

	folderPaths := p.FolderIDToPathMap(fs)
	p.logger.Debug("Resolved folder paths", map[string]interface{}{
		"count": folderPaths.Len(),
		"paths": folderPaths.Paths(),
	})
	report := &MountReport{
		Root:           p.root,
		Results:        make([]ResourceResult, len(resources)),
		InvalidFolders: folderPaths.Invalid(),
	}
	for _, id := range report.InvalidFolders {
		_, ferr := folderPaths.Path(id)
		p.logger.Warn("Skipping folder with broken ancestry", map[string]interface{}{
			"folder_id": id,
			"error":     ferr.Error(),
		})
	}

	p.forEach(len(resources), func(i int) {
		report.Results[i] = p.mountOne(ctx, resources[i], folderPaths, live, disableCache)
	})

	var errs []error
	for _, res := range report.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	p.metrics.SetMounted(len(report.Mounted()))

	p.logger.Info("Mount pass finished", map[string]interface{}{
		"root":     p.root,
		"mounted":  len(report.Mounted()),
		"failed":   len(report.Failed()),
		"skipped":  len(report.Skipped()),
		"duration": time.Since(start).String(),
	})
	return report, stderrors.Join(errs...)
}

// forEach runs fn for 0..n-1, on up to p.parallelism goroutines.
func (p *Planner) forEach(n int, fn func(i int)) {
	if p.parallelism < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.parallelism)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

func (p *Planner) mountOne(ctx context.Context, r types.Resource, folderPaths folders.PathMap, live map[string]bool, disableCache bool) ResourceResult {
	res := ResourceResult{Resource: r}
	log := p.logger.WithFields(map[string]interface{}{"resource": r.Name, "kind": string(r.Kind)})

	mountable, probeErr := p.isMountable(ctx, r)
	if !mountable {
		res.Skipped = true
		log.Debug("Resource is not mountable")
		return res
	}
	if probeErr != nil {
		log.Warn("Could not tell whether object is a directory, mounting anyway", map[string]interface{}{
			"error": probeErr.Error(),
		})
	}

	path, err := p.ResourceMountPath(r, folderPaths)
	if err != nil {
		res.State = types.StateFailed
		res.Err = err
		p.metrics.RecordMount(r.Kind.Cloud(), metrics.OutcomeError, 0)
		p.metrics.RecordError("mount", err)
		log.Error("Cannot compute mount path", map[string]interface{}{"error": err.Error()})
		return res
	}
	res.Path = path

	if live[path] {
		res.State = types.StateMounted
		res.AlreadyMounted = true
		log.Info("Already mounted", map[string]interface{}{"path": path})
		return res
	}

	// Clear empty leftovers of earlier runs so failure markers do not pile up.
	if err := handler.CleanupMountPath(path); err != nil {
		log.Warn("Failed to clean up previous mount directories", map[string]interface{}{"error": err.Error()})
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		res.State = types.StateFailed
		res.Err = errors.Wrap(err, errors.ErrCodeDirectoryCreate, "failed to create mount directory").
			WithComponent("planner").
			WithOperation("mount").
			WithPath(path)
		p.metrics.RecordMount(r.Kind.Cloud(), metrics.OutcomeError, 0)
		p.metrics.RecordError("mount", res.Err)
		log.Error("Failed to create mount directory", map[string]interface{}{"path": path, "error": err.Error()})
		return res
	}

	h, err := p.handlers.NewHandler(r, path, disableCache)
	if err != nil {
		res.State = types.StateFailed
		res.Err = err
		p.metrics.RecordError("mount", err)
		return res
	}

	out, err := h.Mount(ctx)
	res.State = out.State
	res.Reason = out.Reason
	if out.Path != "" {
		res.Path = out.Path
	}
	if err != nil {
		res.Err = err
		p.metrics.RecordError("mount", err)
	}
	p.metrics.RecordMount(r.Kind.Cloud(), metrics.MountOutcome(out.State, out.Reason), out.Duration)
	return res
}

// isMountable reports whether a resource should get a mount point. Buckets
// always do. Objects do when they denote a directory-like prefix, or when
// that cannot be determined, so that the problem shows up as a failed
// mount point instead of a missing one.
func (p *Planner) isMountable(ctx context.Context, r types.Resource) (bool, error) {
	switch {
	case r.Kind.IsBucket():
		return true, nil
	case r.Kind.IsObject():
		dir, err := p.prober.IsDirectory(ctx, r)
		if err != nil {
			return true, err
		}
		return dir, nil
	default:
		return false, nil
	}
}

// fatal makes sure err aborts the pass as a catalog failure.
func (p *Planner) fatal(err error, operation, msg string) error {
	if errors.IsFatal(err) {
		return err
	}
	e := errors.Wrap(err, errors.ErrCodeCatalogFetch, msg).
		WithComponent("planner").
		WithOperation(operation)
	e.Fatal = true
	return e
}
