package planner

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
)

// fakeHost simulates the mount table, gcsfuse and fusermount of a Linux host.
type fakeHost struct {
	mu sync.Mutex
	// mounted maps mount paths to bucket names.
	mounted map[string]string
	// stderr scripts gcsfuse failures per bucket.
	stderr map[string]string
	// busy mount paths cannot be unmounted.
	busy map[string]bool
	// extra lines of mount output, for filesystems wsmount does not own.
	extra    []string
	listExit int
	// missing commands cannot be started at all.
	missing map[string]bool

	runner *process.FakeRunner
}

func newFakeHost() *fakeHost {
	h := &fakeHost{
		mounted: make(map[string]string),
		stderr:  make(map[string]string),
		busy:    make(map[string]bool),
		missing: make(map[string]bool),
		extra: []string{
			"sysfs on /sys type sysfs (rw,nosuid,nodev,noexec,relatime)",
			"/dev/sda1 on / type ext4 (rw,relatime,discard,errors=remount-ro)",
			"fusectl on /sys/fs/fuse/connections type fusectl (rw,nosuid,nodev,noexec,relatime)",
			"other-bucket on /mnt/elsewhere type fuse.gcsfuse (rw,nosuid,nodev,relatime,user_id=1000,group_id=1000)",
		},
	}
	h.runner = &process.FakeRunner{Respond: h.respond}
	return h
}

func (h *fakeHost) respond(name string, args []string) (process.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.missing[name] {
		return process.Result{}, errors.NewError(errors.ErrCodeCommandLaunch, "exec: \""+name+"\": executable file not found in $PATH")
	}

	switch name {
	case "mount":
		if h.listExit != 0 {
			return process.Result{ExitCode: h.listExit, Stderr: "mount: permission denied"}, nil
		}
		lines := append([]string(nil), h.extra...)
		paths := make([]string, 0, len(h.mounted))
		for p := range h.mounted {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			lines = append(lines, fmt.Sprintf("%s on %s type fuse.gcsfuse (rw,nosuid,nodev,relatime,user_id=1000,group_id=1000)", h.mounted[p], p))
		}
		return process.Result{Stdout: strings.Join(lines, "\n") + "\n"}, nil

	case "gcsfuse":
		bucket, path := args[len(args)-2], args[len(args)-1]
		if stderr, ok := h.stderr[bucket]; ok {
			return process.Result{ExitCode: 1, Stderr: stderr}, nil
		}
		h.mounted[path] = bucket
		return process.Result{}, nil

	case "fusermount":
		path := args[len(args)-1]
		if h.busy[path] {
			return process.Result{ExitCode: 1, Stderr: "fusermount: failed to unmount " + path + ": Device or resource busy"}, nil
		}
		if _, ok := h.mounted[path]; !ok {
			return process.Result{ExitCode: 1, Stderr: "fusermount: entry for " + path + " not found in /etc/mtab"}, nil
		}
		delete(h.mounted, path)
		return process.Result{}, nil
	}
	return process.Result{ExitCode: 127, Stderr: name + ": command not found"}, nil
}

func (h *fakeHost) mount(path, bucket string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mounted[path] = bucket
}

func (h *fakeHost) isMounted(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.mounted[path]
	return ok
}
