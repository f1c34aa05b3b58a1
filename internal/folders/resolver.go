// Package folders turns the flat folder list of a workspace into relative
// directory paths.
package folders

import (
	"path/filepath"
	"sort"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// PathMap maps folder ids to paths relative to the workspace root. Folders
// whose ancestry cannot be resolved carry an error instead of a path.
type PathMap struct {
	paths   map[string]string
	invalid map[string]error
}

// Path returns the relative path of a folder. Unknown ids and folders with a
// broken ancestry yield a FOLDER_GRAPH_INVALID error.
func (m PathMap) Path(folderID string) (string, error) {
	if p, ok := m.paths[folderID]; ok {
		return p, nil
	}
	if err, ok := m.invalid[folderID]; ok {
		return "", err
	}
	return "", errors.Newf(errors.ErrCodeFolderGraphInvalid, "unknown folder %q", folderID).
		WithComponent("folders").
		WithContext("folder_id", folderID)
}

// Paths returns a copy of every resolved folder path.
func (m PathMap) Paths() map[string]string {
	out := make(map[string]string, len(m.paths))
	for k, v := range m.paths {
		out[k] = v
	}
	return out
}

// Invalid returns the ids of folders that could not be resolved, sorted.
func (m PathMap) Invalid() []string {
	ids := make([]string, 0, len(m.invalid))
	for id := range m.invalid {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of resolved folders.
func (m PathMap) Len() int {
	return len(m.paths)
}

// Resolver builds PathMaps. The zero value is ready to use.
type Resolver struct {
	// MaxDepth caps the length of a parent chain. Zero means the number of
	// folders, which is enough for any well-formed tree.
	MaxDepth int
}

// FolderIDToPathMap resolves every folder to the display names of its
// ancestors joined from the top of the tree down to the folder itself. The
// result does not depend on input order and nothing is cached between calls.
//
// A parent chain that loops, points at a missing folder, exceeds MaxDepth or
// passes through an unusable display name makes that folder invalid. Other
// folders are unaffected.
func (r Resolver) FolderIDToPathMap(folders []types.Folder) PathMap {
	byID := make(map[string]types.Folder, len(folders))
	for _, f := range folders {
		if _, dup := byID[f.ID]; !dup {
			byID[f.ID] = f
		}
	}

	limit := len(byID)
	if r.MaxDepth > 0 && r.MaxDepth < limit {
		limit = r.MaxDepth
	}

	m := PathMap{
		paths:   make(map[string]string, len(byID)),
		invalid: make(map[string]error),
	}
	for id, f := range byID {
		p, err := resolve(f, byID, limit)
		if err != nil {
			m.invalid[id] = err
			continue
		}
		m.paths[id] = p
	}
	return m
}

func resolve(f types.Folder, byID map[string]types.Folder, limit int) (string, error) {
	invalid := func(format string, args ...interface{}) error {
		return errors.Newf(errors.ErrCodeFolderGraphInvalid, format, args...).
			WithComponent("folders").
			WithOperation("resolve").
			WithContext("folder_id", f.ID)
	}

	names := []string{}
	seen := map[string]bool{}
	cur := f
	for {
		if seen[cur.ID] {
			return "", invalid("folder %q has a cycle in its parent chain at %q", f.ID, cur.ID)
		}
		seen[cur.ID] = true
		if len(seen) > limit {
			return "", invalid("folder %q is nested deeper than %d levels", f.ID, limit)
		}
		if err := utils.ValidatePathComponent(cur.DisplayName); err != nil {
			return "", invalid("folder %q has an unusable display name: %v", cur.ID, err)
		}
		names = append(names, cur.DisplayName)

		if !cur.HasParent() {
			break
		}
		parent, ok := byID[cur.ParentID]
		if !ok {
			return "", invalid("folder %q has unknown parent %q", cur.ID, cur.ParentID)
		}
		cur = parent
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return filepath.Join(names...), nil
}
