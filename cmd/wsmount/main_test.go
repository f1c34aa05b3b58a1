package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsmount/wsmount/internal/catalog"
	"github.com/wsmount/wsmount/internal/config"
	"github.com/wsmount/wsmount/internal/platform"
	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// linuxHost answers mount, gcsfuse and fusermount like a Linux host would.
type linuxHost struct {
	mu      sync.Mutex
	mounted map[string]string
	denied  map[string]bool
}

func newLinuxHost() *linuxHost {
	return &linuxHost{mounted: make(map[string]string), denied: make(map[string]bool)}
}

func (h *linuxHost) respond(name string, args []string) (process.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch name {
	case "mount":
		lines := []string{"/dev/sda1 on / type ext4 (rw,relatime)"}
		paths := make([]string, 0, len(h.mounted))
		for p := range h.mounted {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			lines = append(lines, fmt.Sprintf("%s on %s type fuse.gcsfuse (rw,nosuid,nodev,relatime)", h.mounted[p], p))
		}
		return process.Result{Stdout: strings.Join(lines, "\n") + "\n"}, nil
	case "gcsfuse":
		bucket, path := args[len(args)-2], args[len(args)-1]
		if h.denied[bucket] {
			return process.Result{ExitCode: 1, Stderr: "googleapi: Error 403: caller does not have storage.objects.list access, forbidden"}, nil
		}
		h.mounted[path] = bucket
		return process.Result{}, nil
	case "fusermount":
		path := args[len(args)-1]
		if _, ok := h.mounted[path]; !ok {
			return process.Result{ExitCode: 1, Stderr: "fusermount: entry for " + path + " not found in /etc/mtab"}, nil
		}
		delete(h.mounted, path)
		return process.Result{}, nil
	}
	return process.Result{ExitCode: 127, Stderr: name + ": command not found"}, nil
}

func newTestApp(t *testing.T) (*app, *linuxHost, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewDefault()
	cfg.Workspace.RootDir = filepath.Join(dir, "workspace")
	cfg.Catalog.File = filepath.Join(dir, "catalog.yaml")
	cfg.Metrics.Enabled = true
	cfg.Metrics.Textfile = filepath.Join(dir, "wsmount.prom")
	require.NoError(t, cfg.Validate())

	host := newLinuxHost()
	out := &bytes.Buffer{}
	return &app{
		cfg:      cfg,
		logger:   utils.NewNopLogger(),
		runner:   &process.FakeRunner{Respond: host.respond},
		platform: platform.LinuxLike,
		stdout:   out,
		prober:   catalog.HintProber{},
	}, host, out
}

func writeCatalog(t *testing.T, path string) {
	t.Helper()
	yes := true
	snapshot := &catalog.Snapshot{
		Workspace: "demo",
		Resources: []types.Resource{
			{ID: "r1", Name: "data", Kind: types.KindGCSBucket, Bucket: "data-bucket"},
			{ID: "r2", Name: "logs", Kind: types.KindGCSBucket, Bucket: "logs-bucket",
				Properties: map[string]string{types.FolderPropertyKey: "raw"}},
			{ID: "r3", Name: "secret", Kind: types.KindGCSBucket, Bucket: "secret-bucket"},
			{ID: "r4", Name: "reports", Kind: types.KindGCSObject, Bucket: "data-bucket", Object: "reports", Directory: &yes},
			{ID: "r5", Name: "notebook", Kind: types.KindOther},
		},
		Folders: []types.Folder{
			{ID: "proj", DisplayName: "proj"},
			{ID: "raw", DisplayName: "raw", ParentID: "proj"},
		},
	}
	require.NoError(t, catalog.Save(path, snapshot))
}

func TestMountStatusUnmount(t *testing.T) {
	a, host, out := newTestApp(t)
	host.denied["secret-bucket"] = true
	writeCatalog(t, a.cfg.Catalog.File)
	ctx := context.Background()
	root := a.cfg.Workspace.RootDir

	// A denied bucket is reported through its directory name, not an error.
	require.NoError(t, a.mount(ctx, false))
	assert.DirExists(t, filepath.Join(root, "data"))
	assert.DirExists(t, filepath.Join(root, "proj", "raw", "logs"))
	assert.DirExists(t, filepath.Join(root, "reports"))
	assert.DirExists(t, filepath.Join(root, "secret_NO_ACCESS"))
	assert.Contains(t, out.String(), "3 mounted, 1 failed, 1 skipped")

	metricsText, err := os.ReadFile(a.cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "wsmount_mount_attempts_total")

	out.Reset()
	require.NoError(t, a.status(ctx, false))
	assert.Contains(t, out.String(), "3 mounted, 1 failed, 0 idle")

	out.Reset()
	require.NoError(t, a.status(ctx, true))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, root, decoded["root"])

	out.Reset()
	require.NoError(t, a.unmount(ctx))
	assert.Contains(t, out.String(), "3 unmounted, 0 busy")
	assert.Empty(t, host.mounted)
	assert.NoDirExists(t, filepath.Join(root, "proj"))
	assert.NoDirExists(t, filepath.Join(root, "secret_NO_ACCESS"))
	assert.DirExists(t, root)
}

func TestMountMissingCatalogIsFatal(t *testing.T) {
	a, host, _ := newTestApp(t)

	err := a.mount(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCatalogFetch))
	assert.True(t, errors.IsFatal(err))
	assert.NoDirExists(t, a.cfg.Workspace.RootDir)
	assert.Empty(t, host.mounted)
}

func TestDiagnoseLogsFailureDetails(t *testing.T) {
	a, _, _ := newTestApp(t)
	var logs bytes.Buffer
	logger, err := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  utils.DEBUG,
		Output: &logs,
		Format: utils.FormatJSON,
	})
	require.NoError(t, err)
	a.logger = logger

	err = a.diagnose(a.mount(context.Background(), false))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCatalogFetch))
	assert.Contains(t, logs.String(), "Command failed")
	assert.Contains(t, logs.String(), "Code: CATALOG_FETCH")
	assert.Contains(t, logs.String(), "Recommendation:")

	logs.Reset()
	assert.NoError(t, a.diagnose(nil))
	assert.Empty(t, logs.String())
}

func TestStatusWithoutWorkspace(t *testing.T) {
	a, _, out := newTestApp(t)

	require.NoError(t, a.status(context.Background(), false))
	assert.Contains(t, out.String(), "does not exist")
}

func TestLoadConfiguration(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configFile := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
workspace:
  root_dir: /srv/workspace
mount:
  parallelism: 2
`), 0o600))

	cfg, err := loadConfiguration(commonFlags{
		configPath:  configFile,
		catalogPath: "/srv/catalog.json",
		logLevel:    "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, "/srv/workspace", cfg.Workspace.RootDir)
	assert.Equal(t, 2, cfg.Mount.Parallelism)
	assert.Equal(t, "/srv/catalog.json", cfg.Catalog.File)
	assert.Equal(t, "DEBUG", cfg.Global.LogLevel)

	cfg, err = loadConfiguration(commonFlags{configPath: configFile, rootDir: "/elsewhere"})
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", cfg.Workspace.RootDir)
}

func TestLoadConfigurationDefaultFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".wsmount"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".wsmount", "config.yaml"),
		[]byte("workspace:\n  folder_property_key: folder\n"), 0o600))

	cfg, err := loadConfiguration(commonFlags{})
	require.NoError(t, err)
	assert.Equal(t, "folder", cfg.Workspace.FolderPropertyKey)
}

func TestLoadConfigurationInvalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := loadConfiguration(commonFlags{logLevel: "loud"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigValidation))

	_, err = loadConfiguration(commonFlags{configPath: "/nonexistent/config.yaml"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigLoad))
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"help"}, &out))
	assert.Contains(t, out.String(), "Usage: wsmount")

	assert.Error(t, run(nil, &out))
	assert.ErrorContains(t, run([]string{"remount"}, &out), "unknown subcommand")
	assert.NoError(t, run([]string{"mount", "--help"}, &out))
	assert.ErrorContains(t, run([]string{"status", "extra"}, &out), "unexpected argument")
}
