package handler

import (
	"strings"

	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// DefaultGcsFuseBinary is the Cloud Storage FUSE utility.
const DefaultGcsFuseBinary = "gcsfuse"

// GcsFuseHandler mounts a GCS bucket, or a prefix of one, with gcsfuse.
type GcsFuseHandler struct {
	fuseMount
}

// NewGcsFuseHandler creates a handler for a gcs-bucket or gcs-object resource.
func NewGcsFuseHandler(runner process.Runner, logger *utils.StructuredLogger, resource types.Resource, mountPath string, opts Options) *GcsFuseHandler {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultGcsFuseBinary
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &GcsFuseHandler{fuseMount{
		runner:   runner,
		logger:   logger.WithComponent("gcsfuse"),
		resource: resource,
		path:     mountPath,
		binary:   binary,
		args:     gcsFuseArgs(resource, mountPath, opts),
		classify: classifyGcsFuse,
	}}
}

// Command returns the command line the handler runs.
func (h *GcsFuseHandler) Command() (string, []string) {
	return h.binary, append([]string(nil), h.args...)
}

func gcsFuseArgs(r types.Resource, mountPath string, opts Options) []string {
	var args []string
	if opts.ImplicitDirs {
		args = append(args, "--implicit-dirs")
	}
	if opts.DisableCache {
		args = append(args, "--stat-cache-ttl", "0s", "--type-cache-ttl", "0s")
	}
	if r.Kind.IsObject() {
		if dir := strings.Trim(r.Object, "/"); dir != "" {
			args = append(args, "--only-dir", dir)
		}
	}
	if opts.ReadOnly {
		args = append(args, "-o", "ro", "--file-mode", "444", "--dir-mode", "555")
	}
	return append(args, r.Bucket, mountPath)
}

// classifyGcsFuse checks permission before existence: gcsfuse reports a
// bucket the caller cannot list as forbidden even when it may not exist.
func classifyGcsFuse(stderr string) types.FailureReason {
	switch {
	case strings.Contains(stderr, "forbidden"):
		return types.FailurePermission
	case strings.Contains(stderr, "bucket doesn't exist"):
		return types.FailureNotFound
	default:
		return types.FailureGeneric
	}
}
