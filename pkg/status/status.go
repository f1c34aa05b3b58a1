// Package status reports the state of every mount point under a workspace
// root by reading the directory tree and the live mount table.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// Entry is one mount point found under the root.
type Entry struct {
	// Name is the path relative to the root, with any failure suffix removed.
	Name   string              `json:"name"`
	Path   string              `json:"path"`
	State  types.MountState    `json:"-"`
	Reason types.FailureReason `json:"-"`
	// Source is the mounted bucket, set only for mounted entries.
	Source string `json:"source,omitempty"`
}

// MarshalJSON renders the state and reason by name.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	out := struct {
		plain
		State  string `json:"state"`
		Reason string `json:"reason,omitempty"`
	}{plain: plain(e), State: displayState(e.State)}
	if e.Reason != types.FailureNone {
		out.Reason = e.Reason.String()
	}
	return json.Marshal(out)
}

// Report is the result of one Scan.
type Report struct {
	Root        string    `json:"root"`
	Exists      bool      `json:"exists"`
	Entries     []Entry   `json:"entries"`
	Unreadable  []string  `json:"unreadable,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Scan walks root and classifies each mount point:
//   - a directory listed in mounts is mounted and is not descended into
//   - a directory whose name ends in a failure suffix is failed
//   - any other empty directory is idle
//
// Directories holding other directories are folders and are not reported.
// mounts may hold paths with the root's symlinks resolved. A missing root
// yields an empty report. Directories that cannot be read are listed in
// Unreadable and do not stop the scan.
func Scan(root string, mounts []types.MountEntry) (*Report, error) {
	if !filepath.IsAbs(root) {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "workspace root must be absolute").
			WithComponent("status").
			WithPath(root)
	}
	root = filepath.Clean(root)

	report := &Report{Root: root, GeneratedAt: time.Now()}
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return report, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to stat workspace root").
			WithComponent("status").
			WithPath(root)
	}
	if !info.IsDir() {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "workspace root is not a directory").
			WithComponent("status").
			WithPath(root)
	}
	report.Exists = true

	live := mountedUnder(root, mounts)

	// WalkDir does not follow a symlinked root, so walk its target and
	// report paths under root.
	walkRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		walkRoot = resolved
	}

	walkErr := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if path == walkRoot {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		path = filepath.Join(root, strings.TrimPrefix(path, walkRoot))
		if source, ok := live[path]; ok {
			report.add(root, path, d.Name(), types.StateMounted, types.FailureNone, source)
			return filepath.SkipDir
		}
		if reason, _ := types.ReasonFromName(d.Name()); reason != types.FailureNone {
			report.add(root, path, d.Name(), types.StateFailed, reason, "")
			return filepath.SkipDir
		}
		if err != nil {
			report.Unreadable = append(report.Unreadable, path)
			return filepath.SkipDir
		}
		empty, emptyErr := utils.IsEmptyDir(path)
		if emptyErr != nil {
			report.Unreadable = append(report.Unreadable, path)
			return filepath.SkipDir
		}
		if empty {
			report.add(root, path, d.Name(), types.StateUnmounted, types.FailureNone, "")
		}
		return nil
	})
	if walkErr != nil {
		return nil, errors.Wrap(walkErr, errors.ErrCodeInternalError, "failed to scan workspace").
			WithComponent("status").
			WithPath(root)
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		return report.Entries[i].Name < report.Entries[j].Name
	})
	return report, nil
}

func (r *Report) add(root, path, name string, state types.MountState, reason types.FailureReason, source string) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	if reason != types.FailureNone {
		_, base := types.ReasonFromName(name)
		rel = filepath.Join(filepath.Dir(rel), base)
	}
	r.Entries = append(r.Entries, Entry{
		Name:   rel,
		Path:   path,
		State:  state,
		Reason: reason,
		Source: source,
	})
}

// mountedUnder maps each FUSE mount below root to its source, expressing
// paths under root even when the table shows them with symlinks resolved.
func mountedUnder(root string, mounts []types.MountEntry) map[string]string {
	roots := []string{root}
	if resolved, err := filepath.EvalSymlinks(root); err == nil && resolved != root {
		roots = append(roots, resolved)
	}

	live := make(map[string]string, len(mounts))
	for _, m := range mounts {
		if !m.IsFUSE() {
			continue
		}
		path := filepath.Clean(m.MountPath)
		for i, r := range roots {
			if !utils.IsWithinBase(r, path) {
				continue
			}
			if i > 0 {
				path = filepath.Join(root, strings.TrimPrefix(path, r))
			}
			live[path] = m.Identifier
			break
		}
	}
	return live
}

// Count returns the number of entries in the given state.
func (r *Report) Count(state types.MountState) int {
	n := 0
	for _, e := range r.Entries {
		if e.State == state {
			n++
		}
	}
	return n
}

// Summary returns a one-line count of entries per state.
func (r *Report) Summary() string {
	if !r.Exists {
		return fmt.Sprintf("%s does not exist", r.Root)
	}
	return fmt.Sprintf("%d mounted, %d failed, %d idle",
		r.Count(types.StateMounted), r.Count(types.StateFailed), r.Count(types.StateUnmounted))
}

// WriteTable writes a human-readable table of the report.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tSTATE\tDETAIL\n")
	for _, e := range r.Entries {
		detail := e.Source
		if e.State == types.StateFailed {
			detail = e.Reason.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, displayState(e.State), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, path := range r.Unreadable {
		if _, err := fmt.Fprintf(w, "unreadable: %s\n", path); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, r.Summary())
	return err
}

// JSON returns the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// displayState names an unmounted mount point "idle": the directory exists
// and is waiting for the next mount pass.
func displayState(s types.MountState) string {
	if s == types.StateUnmounted {
		return "idle"
	}
	return s.String()
}
