package planner

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wsmount/wsmount/internal/metrics"
	"github.com/wsmount/wsmount/internal/platform"
	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// ListMounts reads the OS mount table and returns the FUSE mounts that live
// under the workspace root. Every other mount on the host is ignored, so the
// planner never acts on filesystems it does not own.
func (p *Planner) ListMounts(ctx context.Context) ([]types.MountEntry, error) {
	if err := p.platform.Check(); err != nil {
		return nil, err
	}

	res, err := p.runner.Run(ctx, platform.ListMountsCommand)
	if err != nil {
		return nil, p.commandFailed(err, "failed to query mounted resources")
	}
	if !res.Success() {
		return nil, p.commandFailed(nil, "failed to query mounted resources").
			WithDetail("exit_code", res.ExitCode).
			WithDetail("stderr", strings.TrimSpace(res.Stderr))
	}

	roots := p.ownedRoots()
	var owned []types.MountEntry
	for _, entry := range p.platform.ParseMountTable(res.Lines()) {
		if entry.IsFUSE() && withinAny(roots, entry.MountPath) {
			owned = append(owned, entry)
		}
	}
	return owned, nil
}

func (p *Planner) commandFailed(cause error, msg string) *errors.WSMountError {
	e := errors.Wrap(cause, errors.ErrCodeCommandFailed, msg).
		WithComponent("planner").
		WithOperation("list_mounts").
		WithContext("command", process.CommandLine(platform.ListMountsCommand))
	e.Fatal = true
	return e
}

// ownedRoots returns the root and, if it differs, the root with symlinks
// resolved. The mount table shows resolved paths (/private/var on macOS).
func (p *Planner) ownedRoots() []string {
	roots := []string{p.root}
	if resolved, err := filepath.EvalSymlinks(p.root); err == nil && resolved != p.root {
		roots = append(roots, resolved)
	}
	return roots
}

func withinAny(roots []string, path string) bool {
	for _, root := range roots {
		if utils.IsWithinBase(root, path) {
			return true
		}
	}
	return false
}

// underRoot expresses a mount table path under p.root, undoing symlink
// resolution of the root.
func (p *Planner) underRoot(roots []string, path string) string {
	path = filepath.Clean(path)
	for _, root := range roots[1:] {
		if utils.IsWithinBase(root, path) {
			return filepath.Join(p.root, strings.TrimPrefix(path, root))
		}
	}
	return path
}

// liveMounts returns the set of owned mount paths, expressed under p.root.
func (p *Planner) liveMounts(ctx context.Context) (map[string]bool, error) {
	entries, err := p.ListMounts(ctx)
	if err != nil {
		return nil, err
	}
	roots := p.ownedRoots()
	live := make(map[string]bool, len(entries))
	for _, e := range entries {
		live[p.underRoot(roots, e.MountPath)] = true
	}
	return live, nil
}

// UnmountAll unmounts every FUSE mount under the root, then removes the
// empty directories left behind. A mount point that cannot be unmounted does
// not stop the others; all such failures are joined into the returned error,
// each naming its path. Failing to read the mount table, or an unsupported
// platform, is fatal and nothing is touched.
func (p *Planner) UnmountAll(ctx context.Context) (*UnmountReport, error) {
	entries, err := p.ListMounts(ctx)
	if err != nil {
		return nil, err
	}

	report := &UnmountReport{Root: p.root}
	roots := p.ownedRoots()
	busy := make(map[string]bool)
	var errs []error
	for _, entry := range entries {
		start := time.Now()
		err := p.unmounter.Unmount(ctx, entry.MountPath)
		if err != nil && errors.IsFatal(err) {
			return report, err
		}
		if err != nil {
			busy[p.underRoot(roots, entry.MountPath)] = true
			report.Busy = append(report.Busy, entry.MountPath)
			errs = append(errs, err)
			p.metrics.RecordUnmount(metrics.OutcomeBusy, time.Since(start))
			p.metrics.RecordError("unmount", err)
			continue
		}
		report.Unmounted = append(report.Unmounted, entry.MountPath)
		p.metrics.RecordUnmount(metrics.OutcomeUnmounted, time.Since(start))
	}

	pruned, notEmpty, pruneErr := p.PruneEmptyDirs(busy)
	report.Pruned = pruned
	report.NotEmpty = notEmpty
	p.metrics.RecordPruned(len(pruned))
	if pruneErr != nil {
		errs = append(errs, pruneErr)
	}
	p.metrics.SetMounted(len(report.Busy))

	p.logger.Info("Unmount pass finished", map[string]interface{}{
		"root":      p.root,
		"unmounted": len(report.Unmounted),
		"busy":      len(report.Busy),
		"pruned":    len(pruned),
	})
	return report, stderrors.Join(errs...)
}

// PruneEmptyDirs removes empty directories under the root, deepest first,
// keeping the root itself. Directories listed in skip, typically mount
// points that are still mounted, are neither entered nor removed. A
// directory that directly holds files is kept and reported as a
// user-actionable DIRECTORY_NOT_EMPTY error.
func (p *Planner) PruneEmptyDirs(skip map[string]bool) (pruned, notEmpty []string, err error) {
	if !p.WorkspaceDirExists() {
		return nil, nil, nil
	}

	var errs []error
	var walk func(dir string) bool
	walk = func(dir string) bool {
		entries, rerr := os.ReadDir(dir)
		if rerr != nil {
			errs = append(errs, errors.Wrap(rerr, errors.ErrCodeDirectoryDelete, "failed to read directory").
				WithComponent("planner").
				WithOperation("prune").
				WithPath(dir))
			return false
		}

		empty := true
		hasFiles := false
		for _, e := range entries {
			child := filepath.Join(dir, e.Name())
			if !e.IsDir() {
				empty = false
				hasFiles = true
				continue
			}
			if skip[child] || !walk(child) {
				empty = false
			}
		}

		if dir == p.root {
			return false
		}
		if hasFiles {
			notEmpty = append(notEmpty, dir)
			errs = append(errs, errors.Newf(errors.ErrCodeDirectoryNotEmpty,
				"cannot delete non-empty directory %s", dir).
				WithComponent("planner").
				WithOperation("prune").
				WithPath(dir))
			return false
		}
		if !empty {
			return false
		}
		if rmErr := os.Remove(dir); rmErr != nil {
			errs = append(errs, errors.Wrap(rmErr, errors.ErrCodeDirectoryDelete, "failed to delete empty directory").
				WithComponent("planner").
				WithOperation("prune").
				WithPath(dir))
			return false
		}
		pruned = append(pruned, dir)
		return true
	}
	walk(p.root)

	sort.Strings(notEmpty)
	return pruned, notEmpty, stderrors.Join(errs...)
}
