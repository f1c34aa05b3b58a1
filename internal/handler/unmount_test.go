package handler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsmount/wsmount/internal/platform"
	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
)

func TestUnmount_Success(t *testing.T) {
	runner := failWith(0, "")
	require.NoError(t, NewUnmounter(runner, platform.LinuxLike, nil).Unmount(context.Background(), "/w/data"))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "fusermount", calls[0].Name)
	assert.Equal(t, []string{"-u", "/w/data"}, calls[0].Args)
}

func TestUnmount_MacCommand(t *testing.T) {
	runner := failWith(0, "")
	require.NoError(t, NewUnmounter(runner, platform.MacLike, nil).Unmount(context.Background(), "/w/data"))
	assert.Equal(t, []process.Call{{Name: "umount", Args: []string{"/w/data"}}}, runner.Calls())
}

func TestUnmount_NotMountedIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.Mkdir(dir, 0o755))

	linux := NewUnmounter(failWith(1, "fusermount: entry for "+dir+" not found in /etc/mtab"), platform.LinuxLike, nil)
	mac := NewUnmounter(failWith(1, "umount: "+dir+": not currently mounted"), platform.MacLike, nil)

	for i := 0; i < 2; i++ {
		assert.NoError(t, linux.Unmount(context.Background(), dir))
		assert.NoError(t, mac.Unmount(context.Background(), dir))
	}
	assert.DirExists(t, dir, "unmount never deletes a plain directory")
}

func TestUnmount_BusyNamesPath(t *testing.T) {
	runner := failWith(1, "fusermount: failed to unmount /w/proj/raw/logs: Device or resource busy")
	err := NewUnmounter(runner, platform.LinuxLike, nil).Unmount(context.Background(), "/w/proj/raw/logs")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnmountBusy))
	assert.True(t, errors.IsUserActionable(err))
	assert.False(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "/w/proj/raw/logs")

	var wsErr *errors.WSMountError
	require.ErrorAs(t, err, &wsErr)
	assert.Equal(t, "/w/proj/raw/logs", wsErr.Path())
}

func TestUnmount_MacBusyIsNotMistakenForNotMounted(t *testing.T) {
	// The Linux substring must not apply on macOS.
	runner := failWith(1, "umount(/w/x): Resource busy -- try 'diskutil unmount'; entry not found in table")
	err := NewUnmounter(runner, platform.MacLike, nil).Unmount(context.Background(), "/w/x")
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnmountBusy))
}

func TestUnmount_UnsupportedPlatform(t *testing.T) {
	runner := &process.FakeRunner{}
	err := NewUnmounter(runner, platform.Unsupported, nil).Unmount(context.Background(), "/w/x")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnsupportedPlatform))
	assert.True(t, errors.IsFatal(err))
	assert.Empty(t, runner.Calls(), "no command is run")
}

func TestUnmount_LaunchFailure(t *testing.T) {
	runner := &process.FakeRunner{Respond: func(string, []string) (process.Result, error) {
		return process.Result{}, errors.NewError(errors.ErrCodeCommandLaunch, "exec: fusermount: not found")
	}}
	err := NewUnmounter(runner, platform.LinuxLike, nil).Unmount(context.Background(), "/w/x")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCommandLaunch))
	assert.False(t, errors.HasCode(err, errors.ErrCodeUnmountBusy))
	assert.True(t, errors.IsFatal(err), "a missing unmount binary fails every path")
	assert.Contains(t, err.Error(), "/w/x")
}
