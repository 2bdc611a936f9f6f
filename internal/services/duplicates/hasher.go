package duplicates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// Hasher computes content digests by streaming asset bytes
type Hasher struct {
	inventory interfaces.AssetInventory
	timeout   time.Duration
}

// NewHasher creates a hasher bounded by a per-asset timeout
func NewHasher(inventory interfaces.AssetInventory, timeout time.Duration) *Hasher {
	return &Hasher{
		inventory: inventory,
		timeout:   timeout,
	}
}

// Hash returns the hex SHA-256 of the asset's bytes
func (h *Hasher) Hash(ctx context.Context, asset *models.Asset) (string, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	body, err := h.inventory.Open(ctx, asset.Permalink)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", asset.Permalink, err)
	}
	defer body.Close()

	digest := sha256.New()
	if _, err := io.Copy(digest, &ctxReader{ctx: ctx, r: body}); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", asset.Permalink, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// ctxReader stops a copy once ctx is done, for readers that ignore it (local files)
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
