package handler

import (
	"strings"

	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// DefaultS3FuseBinary is Mountpoint for Amazon S3.
const DefaultS3FuseBinary = "mount-s3"

// S3Handler mounts an S3 bucket, or a prefix of one, with mount-s3.
type S3Handler struct {
	fuseMount
}

// NewS3Handler creates a handler for an s3-bucket or s3-object resource.
func NewS3Handler(runner process.Runner, logger *utils.StructuredLogger, resource types.Resource, mountPath string, opts Options) *S3Handler {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultS3FuseBinary
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &S3Handler{fuseMount{
		runner:   runner,
		logger:   logger.WithComponent("mount-s3"),
		resource: resource,
		path:     mountPath,
		binary:   binary,
		args:     s3Args(resource, mountPath, opts),
		classify: classifyS3,
	}}
}

// Command returns the command line the handler runs.
func (h *S3Handler) Command() (string, []string) {
	return h.binary, append([]string(nil), h.args...)
}

func s3Args(r types.Resource, mountPath string, opts Options) []string {
	var args []string
	if opts.DisableCache {
		args = append(args, "--metadata-ttl", "0")
	}
	if r.Kind.IsObject() {
		// mount-s3 requires the prefix to end with a delimiter.
		if prefix := strings.Trim(r.Object, "/"); prefix != "" {
			args = append(args, "--prefix", prefix+"/")
		}
	}
	if opts.ReadOnly {
		args = append(args, "--read-only")
	}
	return append(args, r.Bucket, mountPath)
}

func classifyS3(stderr string) types.FailureReason {
	switch {
	case strings.Contains(stderr, "AccessDenied"), strings.Contains(stderr, "Forbidden"):
		return types.FailurePermission
	case strings.Contains(stderr, "NoSuchBucket"):
		return types.FailureNotFound
	default:
		return types.FailureGeneric
	}
}
