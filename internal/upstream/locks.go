package upstream

import (
	"context"
	"net/http"
	"net/url"

	"github.com/instrolab/lims-portal-api/internal/models"
)

// LocksClient reads advisory lock state from the lock service. It
// satisfies the lock watcher's Source contract and never writes.
type LocksClient struct {
	c *Client
}

// NewLocksClient wraps the shared transport.
func NewLocksClient(c *Client) *LocksClient {
	return &LocksClient{c: c}
}

// Fetch returns the current lock state of one resource.
func (l *LocksClient) Fetch(ctx context.Context, kind, id string) (models.LockState, error) {
	var out struct {
		Locked bool   `json:"locked"`
		Holder string `json:"holder"`
	}
	path := "/locks/" + url.PathEscape(kind) + "/" + url.PathEscape(id)
	if err := l.c.doJSON(ctx, http.MethodGet, path, "locks", nil, &out); err != nil {
		return models.LockState{}, err
	}
	return models.LockState{Locked: out.Locked, Holder: out.Holder}, nil
}
