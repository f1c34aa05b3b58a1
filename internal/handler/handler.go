// Package handler drives the external FUSE utilities that mount one cloud
// resource onto one directory, and the shared unmount command.
//
// A failed mount is recorded in the filesystem: the mount directory is
// renamed with a suffix naming the failure class (see types.FailureReason).
package handler

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// MountHandler mounts one resource at one directory.
type MountHandler interface {
	// Mount runs the mount utility. A classified mount failure is not an
	// error: it is reported in the Outcome and marked on disk. The error
	// is reserved for failures of the handler itself, such as a missing
	// binary or a rename that did not happen.
	Mount(ctx context.Context) (Outcome, error)
	// MountPath is the directory the resource is mounted at.
	MountPath() string
	// State is the current lifecycle state.
	State() types.MountState
}

// Outcome describes the result of one mount attempt.
type Outcome struct {
	Resource types.Resource
	State    types.MountState
	Reason   types.FailureReason
	// Path is where the mount point is after the attempt: the mount path
	// itself, or the failure-suffixed directory it was renamed to.
	Path     string
	Stderr   string
	Duration time.Duration
}

// Err converts a failed outcome into a structured error.
func (o Outcome) Err() error {
	if o.State != types.StateFailed {
		return nil
	}
	var code errors.ErrorCode
	switch o.Reason {
	case types.FailurePermission:
		code = errors.ErrCodeMountAccessDenied
	case types.FailureNotFound:
		code = errors.ErrCodeMountTargetNotFound
	default:
		code = errors.ErrCodeMountFailed
	}
	err := errors.Newf(code, "failed to mount %s", o.Resource.CloudID()).
		WithComponent("handler").
		WithOperation("mount").
		WithPath(o.Path)
	if stderr := strings.TrimSpace(o.Stderr); stderr != "" {
		err = err.WithDetail("stderr", stderr)
	}
	return err
}

// Options tune the mount command line.
type Options struct {
	// Binary overrides the mount utility name.
	Binary string
	// DisableCache turns off metadata caching so remote changes show up
	// immediately.
	DisableCache bool
	// ImplicitDirs makes directories implied by object names visible.
	// Only gcsfuse uses it.
	ImplicitDirs bool
	// ReadOnly mounts without write access.
	ReadOnly bool
}

// classifier maps stderr of a failed mount onto a failure reason.
type classifier func(stderr string) types.FailureReason

// fuseMount holds what every FUSE mount handler shares: running the command,
// the state machine and marking failures on disk.
type fuseMount struct {
	mu       sync.Mutex
	runner   process.Runner
	logger   *utils.StructuredLogger
	resource types.Resource
	path     string
	state    types.MountState
	binary   string
	args     []string
	classify classifier
}

func (m *fuseMount) MountPath() string {
	return m.path
}

func (m *fuseMount) State() types.MountState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *fuseMount) setState(s types.MountState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *fuseMount) Mount(ctx context.Context) (Outcome, error) {
	out := Outcome{Resource: m.resource, Path: m.path}
	log := m.logger.WithFields(map[string]interface{}{
		"resource": m.resource.Name,
		"target":   m.resource.CloudID(),
		"path":     m.path,
	})

	res, err := m.runner.Run(ctx, m.binary, m.args...)
	out.Duration = res.Duration
	if err != nil && errors.HasCode(err, errors.ErrCodeOperationCanceled) {
		log.Warn("Mount canceled")
		return out, err
	}
	if err != nil {
		// The utility never ran, so there is no stderr to classify. The
		// directory still gets a marker so the failure is visible.
		out.State = types.StateFailed
		out.Reason = types.FailureGeneric
		out.Stderr = err.Error()
		m.setState(types.StateFailed)
		marked, markErr := MarkFailed(m.path, out.Reason)
		if markErr == nil {
			out.Path = marked
		}
		log.Error("Failed to start mount utility", map[string]interface{}{"error": err.Error()})
		if markErr != nil {
			return out, markErr
		}
		return out, err
	}

	out.Stderr = res.Stderr
	if res.Success() {
		out.State = types.StateMounted
		m.setState(types.StateMounted)
		log.Info("Mounted resource")
		return out, nil
	}

	out.State = types.StateFailed
	out.Reason = m.classify(res.Stderr)
	m.setState(types.StateFailed)
	log.Error("Mount failed", map[string]interface{}{
		"exit_code": res.ExitCode,
		"reason":    out.Reason.String(),
		"stderr":    strings.TrimSpace(res.Stderr),
	})

	marked, err := MarkFailed(m.path, out.Reason)
	if err != nil {
		return out, err
	}
	out.Path = marked
	return out, nil
}

// MarkFailed renames path to path+suffix for the reason and returns the new
// path. A stale marker directory left by an earlier run is replaced when it
// is empty.
func MarkFailed(path string, reason types.FailureReason) (string, error) {
	suffix := reason.Suffix()
	if suffix == "" {
		return path, nil
	}
	target := path + suffix

	markErr := func(cause error, msg string) error {
		return errors.Wrap(cause, errors.ErrCodeMountMarkFailed, msg).
			WithComponent("handler").
			WithOperation("mark_failed").
			WithPath(path).
			WithContext("target", target)
	}

	if _, err := os.Lstat(target); err == nil {
		empty, err := utils.IsEmptyDir(target)
		if err != nil {
			return path, markErr(err, "failed to inspect existing failure marker")
		}
		if !empty {
			return path, markErr(nil, "failure marker already exists and is not empty")
		}
		if err := os.Remove(target); err != nil {
			return path, markErr(err, "failed to replace existing failure marker")
		}
	} else if !os.IsNotExist(err) {
		return path, markErr(err, "failed to inspect existing failure marker")
	}

	if err := os.Rename(path, target); err != nil {
		return path, markErr(err, "failed to set error state on mount point")
	}
	return target, nil
}

// CleanupMountPath removes the mount directory and its failure-suffixed
// siblings, each only if it exists and is empty. It prepares a path for a
// fresh mount attempt.
func CleanupMountPath(path string) error {
	candidates := []string{path}
	for _, suffix := range types.FailureSuffixes {
		candidates = append(candidates, path+suffix)
	}

	for _, dir := range candidates {
		empty, err := utils.IsEmptyDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDirectoryDelete, "failed to inspect directory").
				WithComponent("handler").
				WithOperation("cleanup").
				WithPath(dir)
		}
		if !empty {
			continue
		}
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.ErrCodeDirectoryDelete, "failed to delete directory").
				WithComponent("handler").
				WithOperation("cleanup").
				WithPath(dir)
		}
	}
	return nil
}
