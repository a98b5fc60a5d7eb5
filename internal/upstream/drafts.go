package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// DraftsClient talks to the draft persistence service. Its SaveDraft
// signature satisfies the autosave engine's Saver contract.
type DraftsClient struct {
	c *Client
}

// NewDraftsClient wraps the shared transport.
func NewDraftsClient(c *Client) *DraftsClient {
	return &DraftsClient{c: c}
}

type draftSaveRequest struct {
	DraftID   *string          `json:"draft_id"`
	DraftData models.DraftData `json:"draft_data"`
}

// SaveDraft upserts a draft. An empty draftID is sent as null and the
// service mints one; the ack echoes the stored draft.
func (d *DraftsClient) SaveDraft(ctx context.Context, draftID string, data models.DraftData) (*models.DraftAck, error) {
	req := draftSaveRequest{DraftData: data}
	if draftID != "" {
		req.DraftID = &draftID
	}

	var ack models.DraftAck
	if err := d.c.doJSON(ctx, http.MethodPatch, "/drafts", "drafts", req, &ack); err != nil {
		return nil, err
	}
	if ack.DraftID == "" {
		return nil, appErrors.Clone(appErrors.ErrUpstream, "drafts service returned no draft id")
	}
	return &ack, nil
}

// DraftEnvelope is a stored draft with its payload kept raw so the
// session layer can reconcile legacy shapes itself.
type DraftEnvelope struct {
	DraftID   string          `json:"draft_id"`
	UpdatedAt time.Time       `json:"draft_updated_at"`
	Data      json.RawMessage `json:"draft_data"`
}

// GetDraft fetches a stored draft by id.
func (d *DraftsClient) GetDraft(ctx context.Context, id string) (*DraftEnvelope, error) {
	var env DraftEnvelope
	if err := d.c.doJSON(ctx, http.MethodGet, "/drafts/"+url.PathEscape(id), "drafts", nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
