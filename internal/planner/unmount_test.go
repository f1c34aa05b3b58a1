package planner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsmount/wsmount/internal/catalog"
	"github.com/wsmount/wsmount/internal/platform"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
)

func TestListMounts_OwnedFUSEOnly(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, os.MkdirAll(f.root, 0o755))
	f.host.mount(filepath.Join(f.root, "data"), "data-bucket")
	f.host.mount(f.root+"2/data", "sibling-root")
	f.host.extra = append(f.host.extra, "/dev/sdb1 on "+filepath.Join(f.root, "disk")+" type ext4 (rw)")

	entries, err := f.planner.ListMounts(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data-bucket", entries[0].Identifier)
	assert.Equal(t, filepath.Join(f.root, "data"), entries[0].MountPath)
}

func TestUnmountAll_IgnoresForeignMounts(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "data"), 0o755))
	f.host.mount(filepath.Join(f.root, "data"), "data-bucket")

	report, err := f.planner.UnmountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(f.root, "data")}, report.Unmounted)

	for _, c := range f.host.runner.CallsTo("fusermount") {
		assert.NotEqual(t, "/", c.Args[len(c.Args)-1])
		assert.NotEqual(t, "/mnt/elsewhere", c.Args[len(c.Args)-1])
	}
	assert.Len(t, f.host.runner.CallsTo("fusermount"), 1)
	assert.True(t, f.host.isMounted("/mnt/elsewhere"))
}

func TestUnmountAll_Idempotent(t *testing.T) {
	f := newFixture(t, Config{})
	f.catalog.Resources = []types.Resource{bucket("data")}
	_, err := f.planner.MountAll(context.Background(), false)
	require.NoError(t, err)

	// A plain directory the user created must survive every pass.
	keep := filepath.Join(f.root, "notes")
	require.NoError(t, os.MkdirAll(keep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(keep, "todo.txt"), []byte("x"), 0o600))

	for i := 0; i < 2; i++ {
		_, err := f.planner.UnmountAll(context.Background())
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeDirectoryNotEmpty))
		assert.False(t, errors.HasCode(err, errors.ErrCodeUnmountBusy))
		assert.FileExists(t, filepath.Join(keep, "todo.txt"))
	}
	assert.False(t, f.host.isMounted(filepath.Join(f.root, "data")))
	assert.NoDirExists(t, filepath.Join(f.root, "data"))

	// Unmounting a path that is not mounted is not an error.
	require.NoError(t, f.planner.unmounter.Unmount(context.Background(), filepath.Join(f.root, "data")))
}

func TestUnmountAll_BusyContinuesAndNamesPath(t *testing.T) {
	f := newFixture(t, Config{})
	f.catalog.Folders = projFolders
	f.catalog.Resources = []types.Resource{bucket("data"), inFolder(bucket("logs"), "f-raw"), bucket("other")}
	_, err := f.planner.MountAll(context.Background(), false)
	require.NoError(t, err)

	busyPath := filepath.Join(f.root, "proj", "raw", "logs")
	f.host.busy[busyPath] = true

	report, err := f.planner.UnmountAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnmountBusy))
	assert.True(t, errors.IsUserActionable(err))
	assert.False(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), busyPath)

	assert.Equal(t, []string{busyPath}, report.Busy)
	assert.Len(t, report.Unmounted, 2, "other mounts are still unmounted")
	assert.True(t, f.host.isMounted(busyPath))

	// The busy mount point and its parents are kept, everything else is pruned.
	assert.DirExists(t, busyPath)
	assert.NoDirExists(t, filepath.Join(f.root, "data"))
	assert.NoDirExists(t, filepath.Join(f.root, "other"))
	assert.Empty(t, report.NotEmpty)
}

func TestUnmountAll_SymlinkedRootKeepsBusyMounts(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "data"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(target, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "data", "object.csv"), []byte("x"), 0o600))
	require.NoError(t, os.Symlink(target, link))
	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	// The mount table lists the resolved path.
	host := newFakeHost()
	busyPath := filepath.Join(resolved, "data")
	host.mount(busyPath, "data-bucket")
	host.busy[busyPath] = true

	p, err := New(Config{RootDir: link}, Deps{Catalog: &catalog.Static{}, Runner: host.runner, Platform: platform.LinuxLike})
	require.NoError(t, err)

	report, err := p.UnmountAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnmountBusy))
	assert.False(t, errors.HasCode(err, errors.ErrCodeDirectoryNotEmpty), "a busy mount is not entered")
	assert.Equal(t, []string{busyPath}, report.Busy)
	assert.Empty(t, report.NotEmpty)
	assert.Equal(t, []string{filepath.Join(link, "empty")}, report.Pruned)
	assert.FileExists(t, filepath.Join(target, "data", "object.csv"))
}

func TestUnmountAll_MissingUnmountCommandIsFatal(t *testing.T) {
	f := newFixture(t, Config{})
	f.catalog.Resources = []types.Resource{bucket("data"), bucket("logs")}
	_, err := f.planner.MountAll(context.Background(), false)
	require.NoError(t, err)
	f.host.missing["fusermount"] = true

	report, err := f.planner.UnmountAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCommandLaunch))
	assert.False(t, errors.HasCode(err, errors.ErrCodeUnmountBusy))
	assert.True(t, errors.IsFatal(err))
	assert.Empty(t, report.Busy)
	assert.Len(t, f.host.runner.CallsTo("fusermount"), 1, "stops at the first launch failure")
	assert.DirExists(t, filepath.Join(f.root, "data"), "nothing is pruned")
}

func TestUnmountAll_PrunesFailureMarkers(t *testing.T) {
	f := newFixture(t, Config{})
	f.catalog.Resources = []types.Resource{bucket("secret")}
	f.host.stderr["secret-bucket"] = forbiddenStderr
	_, err := f.planner.MountAll(context.Background(), false)
	require.NoError(t, err)
	require.DirExists(t, filepath.Join(f.root, "secret_NO_ACCESS"))

	report, err := f.planner.UnmountAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Unmounted)
	assert.Equal(t, []string{filepath.Join(f.root, "secret_NO_ACCESS")}, report.Pruned)
	assert.DirExists(t, f.root)
}

func TestUnmountAll_ListFailureIsFatal(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "empty"), 0o755))
	f.host.listExit = 1

	_, err := f.planner.UnmountAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCommandFailed))
	assert.True(t, errors.IsFatal(err))
	assert.DirExists(t, filepath.Join(f.root, "empty"), "nothing is pruned")
}

func TestUnmountAll_UnsupportedPlatform(t *testing.T) {
	host := newFakeHost()
	p, err := New(Config{RootDir: filepath.Join(t.TempDir(), "w")}, Deps{
		Catalog:  &catalog.Static{},
		Runner:   host.runner,
		Platform: platform.Unsupported,
	})
	require.NoError(t, err)

	_, err = p.UnmountAll(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnsupportedPlatform))
	assert.Empty(t, host.runner.Calls())
}

func TestUnmountAll_MissingRoot(t *testing.T) {
	f := newFixture(t, Config{})
	report, err := f.planner.UnmountAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Pruned)
	assert.NoDirExists(t, f.root)
}

func TestPruneEmptyDirs(t *testing.T) {
	f := newFixture(t, Config{})
	for _, d := range []string{"a/b/c", "a/d", "keep/sub", "skip/inner"} {
		require.NoError(t, os.MkdirAll(filepath.Join(f.root, d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "keep", "file"), []byte("x"), 0o600))

	pruned, notEmpty, err := f.planner.PruneEmptyDirs(map[string]bool{filepath.Join(f.root, "skip"): true})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDirectoryNotEmpty))
	assert.True(t, errors.IsUserActionable(err))

	assert.ElementsMatch(t, []string{
		filepath.Join(f.root, "a", "b", "c"),
		filepath.Join(f.root, "a", "b"),
		filepath.Join(f.root, "a", "d"),
		filepath.Join(f.root, "a"),
		filepath.Join(f.root, "keep", "sub"),
	}, pruned)
	assert.Equal(t, []string{filepath.Join(f.root, "keep")}, notEmpty)
	assert.DirExists(t, filepath.Join(f.root, "skip", "inner"), "skipped paths are not entered")
	assert.DirExists(t, f.root)
}
