// Package catalog supplies the resources and folders of a workspace, and
// decides whether an object resource denotes a directory-like prefix.
package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
)

// Catalog lists the contents of one workspace.
type Catalog interface {
	ListResources(ctx context.Context) ([]types.Resource, error)
	ListFolders(ctx context.Context) ([]types.Folder, error)
}

// Snapshot is the on-disk form of a catalog as exported by the resource
// directory service.
type Snapshot struct {
	Workspace string           `yaml:"workspace,omitempty" json:"workspace,omitempty"`
	Resources []types.Resource `yaml:"resources" json:"resources"`
	Folders   []types.Folder   `yaml:"folders" json:"folders"`
}

// normalize canonicalizes resource kinds so catalogs can use the service's
// spelling (GCS_BUCKET, AWS_S3_STORAGE_FOLDER, ...).
func (s *Snapshot) normalize() {
	for i := range s.Resources {
		s.Resources[i].Kind = types.ParseResourceKind(string(s.Resources[i].Kind))
	}
}

// FileCatalog reads a Snapshot file. The file is read on every call so that
// changes made between workspace operations are picked up.
type FileCatalog struct {
	path string
}

// NewFileCatalog creates a catalog backed by a YAML or JSON snapshot file.
func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

// Path returns the snapshot file path.
func (c *FileCatalog) Path() string {
	return c.path
}

// ListResources implements Catalog.
func (c *FileCatalog) ListResources(ctx context.Context) ([]types.Resource, error) {
	s, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Resources, nil
}

// ListFolders implements Catalog.
func (c *FileCatalog) ListFolders(ctx context.Context) ([]types.Folder, error) {
	s, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Folders, nil
}

// Load reads and parses the snapshot file.
func (c *FileCatalog) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOperationCanceled, "catalog read canceled").
			WithComponent("catalog")
	}
	if c.path == "" {
		return nil, errors.NewError(errors.ErrCodeCatalogFetch, "no catalog file configured").
			WithComponent("catalog")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		code := errors.ErrCodeCatalogUnavailable
		if os.IsNotExist(err) || os.IsPermission(err) {
			code = errors.ErrCodeCatalogFetch
		}
		return nil, errors.Wrap(err, code, "failed to read catalog").
			WithComponent("catalog").
			WithOperation("load").
			WithPath(c.path)
	}

	var s Snapshot
	if strings.EqualFold(filepath.Ext(c.path), ".json") {
		err = json.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCatalogFetch, "failed to parse catalog").
			WithComponent("catalog").
			WithOperation("load").
			WithPath(c.path)
	}
	s.normalize()
	return &s, nil
}

// Save writes a snapshot as YAML. It is how exported catalogs are produced
// and is used by tests to build fixtures.
func Save(path string, s *Snapshot) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal catalog").
			WithComponent("catalog")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to write catalog").
			WithComponent("catalog").
			WithPath(path)
	}
	return nil
}

// Static is an in-memory Catalog.
type Static struct {
	Resources []types.Resource
	Folders   []types.Folder
}

// ListResources implements Catalog.
func (s *Static) ListResources(context.Context) ([]types.Resource, error) {
	return s.Resources, nil
}

// ListFolders implements Catalog.
func (s *Static) ListFolders(context.Context) ([]types.Folder, error) {
	return s.Folders, nil
}
