package upstream

import (
	"context"
	"net/http"
	"net/url"
)

// RemarkItem is one per-line remark to store against a record.
type RemarkItem struct {
	LineID string `json:"line_id"`
	Remark string `json:"remark"`
}

// RemarksClient pushes customer review remarks to the records service.
type RemarksClient struct {
	c *Client
}

// NewRemarksClient wraps the shared transport.
func NewRemarksClient(c *Client) *RemarksClient {
	return &RemarksClient{c: c}
}

// SubmitRemarks stores the full remark set for a record in one call.
func (r *RemarksClient) SubmitRemarks(ctx context.Context, recordID string, items []RemarkItem) error {
	req := struct {
		Items []RemarkItem `json:"items"`
	}{Items: items}
	path := "/records/" + url.PathEscape(recordID) + "/remarks"
	return r.c.doJSON(ctx, http.MethodPost, path, "remarks", req, nil)
}
