package handler

import (
	"context"
	"strings"

	"github.com/wsmount/wsmount/internal/platform"
	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/utils"
)

// Unmounter unmounts FUSE mount points. It is not tied to a resource kind:
// the platform's unmount command works for every FUSE utility.
type Unmounter struct {
	runner   process.Runner
	platform platform.Platform
	logger   *utils.StructuredLogger
}

// NewUnmounter creates an Unmounter for the given platform.
func NewUnmounter(runner process.Runner, p platform.Platform, logger *utils.StructuredLogger) *Unmounter {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Unmounter{
		runner:   runner,
		platform: p,
		logger:   logger.WithComponent("unmount"),
	}
}

// Unmount unmounts path. A path that is not mounted is not an error, so
// calling Unmount twice is safe. A command that exits nonzero is reported as
// a user-actionable UNMOUNT_BUSY error naming the path. A command that
// cannot be run at all is fatal: it would fail for every other path too.
func (u *Unmounter) Unmount(ctx context.Context, path string) error {
	name, args, err := u.platform.UnmountCommand(path)
	if err != nil {
		return err
	}

	res, err := u.runner.Run(ctx, name, args...)
	if err != nil {
		code := errors.ErrCodeCommandLaunch
		if errors.HasCode(err, errors.ErrCodeOperationCanceled) {
			code = errors.ErrCodeOperationCanceled
		}
		e := errors.Wrap(err, code, "failed to run "+name+" for "+path).
			WithComponent("handler").
			WithOperation("unmount").
			WithPath(path).
			WithContext("command", process.CommandLine(name, args...))
		e.Fatal = true
		return e
	}

	if res.Success() {
		u.logger.Info("Unmounted", map[string]interface{}{"path": path})
		return nil
	}
	if u.platform.IsNotMountedError(res.Stderr) {
		u.logger.Debug("Path was not mounted", map[string]interface{}{"path": path})
		return nil
	}

	stderr := strings.TrimSpace(res.Stderr)
	u.logger.Error("Unmount failed", map[string]interface{}{
		"path":      path,
		"exit_code": res.ExitCode,
		"stderr":    stderr,
	})
	return errors.Newf(errors.ErrCodeUnmountBusy,
		"failed to unmount %s, make sure that the mount point is not being used by other processes", path).
		WithComponent("handler").
		WithOperation("unmount").
		WithPath(path).
		WithDetail("stderr", stderr).
		WithDetail("command", process.CommandLine(name, args...))
}
