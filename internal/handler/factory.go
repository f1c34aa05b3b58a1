package handler

import (
	"github.com/wsmount/wsmount/internal/process"
	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// Factory picks the mount handler for a resource kind.
type Factory struct {
	Runner        process.Runner
	Logger        *utils.StructuredLogger
	GcsFuseBinary string
	S3FuseBinary  string
	ImplicitDirs  bool
	ReadOnly      bool
}

// NewHandler returns the handler that mounts resource at mountPath.
func (f *Factory) NewHandler(resource types.Resource, mountPath string, disableCache bool) (MountHandler, error) {
	opts := Options{
		DisableCache: disableCache,
		ImplicitDirs: f.ImplicitDirs,
		ReadOnly:     f.ReadOnly,
	}
	switch resource.Kind.Cloud() {
	case "gcs":
		opts.Binary = f.GcsFuseBinary
		return NewGcsFuseHandler(f.Runner, f.Logger, resource, mountPath, opts), nil
	case "s3":
		opts.Binary = f.S3FuseBinary
		return NewS3Handler(f.Runner, f.Logger, resource, mountPath, opts), nil
	default:
		return nil, errors.Newf(errors.ErrCodeUnsupportedResource,
			"resource %s of kind %q cannot be mounted", resource.Name, resource.Kind).
			WithComponent("handler").
			WithPath(mountPath)
	}
}
