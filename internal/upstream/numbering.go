package upstream

import (
	"context"
	"net/http"

	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// NumberingClient asks the numbering service for the next inward serial.
type NumberingClient struct {
	c *Client
}

// NewNumberingClient wraps the shared transport.
func NewNumberingClient(c *Client) *NumberingClient {
	return &NumberingClient{c: c}
}

// NextInwardSerial reserves the next serial. Callers fall back to the
// local allocator when this errors.
func (n *NumberingClient) NextInwardSerial(ctx context.Context) (string, error) {
	var out struct {
		Serial string `json:"serial"`
	}
	if err := n.c.doJSON(ctx, http.MethodGet, "/numbering/inward/next", "numbering", nil, &out); err != nil {
		return "", err
	}
	if out.Serial == "" {
		return "", appErrors.Clone(appErrors.ErrUpstream, "numbering service returned an empty serial")
	}
	return out.Serial, nil
}
