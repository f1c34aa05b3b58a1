package planner

import (
	"github.com/wsmount/wsmount/pkg/types"
)

// ResourceResult is what a mount pass did with one resource.
type ResourceResult struct {
	Resource types.Resource
	// Path is the final location: the mount point, the failure-suffixed
	// directory it was renamed to, or the intended path when nothing could
	// be created.
	Path   string
	State  types.MountState
	Reason types.FailureReason
	// Skipped is set for resources that are not mountable.
	Skipped bool
	// AlreadyMounted is set when the path was a live mount before the pass.
	AlreadyMounted bool
	Err            error
}

// MountReport summarizes a mount pass.
type MountReport struct {
	Root           string
	Results        []ResourceResult
	InvalidFolders []string
}

// Mounted returns the results of resources that are mounted.
func (r *MountReport) Mounted() []ResourceResult {
	return r.filter(func(res ResourceResult) bool { return res.State == types.StateMounted })
}

// Failed returns the results of mountable resources that are not mounted.
func (r *MountReport) Failed() []ResourceResult {
	return r.filter(func(res ResourceResult) bool { return !res.Skipped && res.State != types.StateMounted })
}

// Skipped returns the results of resources that were not mountable.
func (r *MountReport) Skipped() []ResourceResult {
	return r.filter(func(res ResourceResult) bool { return res.Skipped })
}

func (r *MountReport) filter(keep func(ResourceResult) bool) []ResourceResult {
	var out []ResourceResult
	for _, res := range r.Results {
		if keep(res) {
			out = append(out, res)
		}
	}
	return out
}

// UnmountReport summarizes an unmount pass.
type UnmountReport struct {
	Root string
	// Unmounted lists mount points that are no longer mounted, including
	// ones that turned out not to be mounted at all.
	Unmounted []string
	// Busy lists mount points that could not be unmounted.
	Busy []string
	// Pruned lists the empty directories that were removed.
	Pruned []string
	// NotEmpty lists directories that were kept because they hold files.
	NotEmpty []string
}
