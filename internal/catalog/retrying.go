package catalog

import (
	"context"
	"time"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/retry"
	"github.com/wsmount/wsmount/pkg/types"
	"github.com/wsmount/wsmount/pkg/utils"
)

// Retrying retries transient catalog failures. Whatever still fails is
// returned as a fatal CATALOG_FETCH error.
type Retrying struct {
	inner   Catalog
	retryer *retry.Retryer
}

// NewRetrying wraps inner with the given retry policy.
func NewRetrying(inner Catalog, cfg retry.Config, logger *utils.StructuredLogger) *Retrying {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	log := logger.WithComponent("catalog")
	r := retry.New(cfg).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("Catalog fetch failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	})
	return &Retrying{inner: inner, retryer: r}
}

// ListResources implements Catalog.
func (c *Retrying) ListResources(ctx context.Context) ([]types.Resource, error) {
	var out []types.Resource
	err := c.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.inner.ListResources(ctx)
		return err
	})
	if err != nil {
		return nil, fetchError(err, "list_resources")
	}
	return out, nil
}

// ListFolders implements Catalog.
func (c *Retrying) ListFolders(ctx context.Context) ([]types.Folder, error) {
	var out []types.Folder
	err := c.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.inner.ListFolders(ctx)
		return err
	})
	if err != nil {
		return nil, fetchError(err, "list_folders")
	}
	return out, nil
}

func fetchError(err error, operation string) error {
	if errors.HasCode(err, errors.ErrCodeCatalogFetch) {
		return err
	}
	return errors.Wrap(err, errors.ErrCodeCatalogFetch, "failed to fetch workspace catalog").
		WithComponent("catalog").
		WithOperation(operation)
}
