package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// PhotoPart is one staged file to attach to an equipment line when a
// record is created or updated.
type PhotoPart struct {
	LineIndex int
	Filename  string
	Reader    io.Reader
}

// RecordsClient talks to the records service.
type RecordsClient struct {
	c *Client
}

// NewRecordsClient wraps the shared transport.
func NewRecordsClient(c *Client) *RecordsClient {
	return &RecordsClient{c: c}
}

// CreateRecord commits a form as a new inward record. The payload is
// multipart: one "data" JSON part plus a photos_{lineIndex} file part
// per staged photo.
func (r *RecordsClient) CreateRecord(ctx context.Context, data models.DraftData, photos []PhotoPart) (*models.InwardRecord, error) {
	return r.send(ctx, http.MethodPost, "/records", data, photos)
}

// UpdateRecord overwrites a committed record with edited values, using
// the same multipart shape as creation.
func (r *RecordsClient) UpdateRecord(ctx context.Context, id string, data models.DraftData, photos []PhotoPart) (*models.InwardRecord, error) {
	return r.send(ctx, http.MethodPut, "/records/"+url.PathEscape(id), data, photos)
}

// GetRecord fetches a committed record by id.
func (r *RecordsClient) GetRecord(ctx context.Context, id string) (*models.InwardRecord, error) {
	var rec models.InwardRecord
	if err := r.c.doJSON(ctx, http.MethodGet, "/records/"+url.PathEscape(id), "records", nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateStatus advances a record through its lifecycle.
func (r *RecordsClient) UpdateStatus(ctx context.Context, id string, status models.RecordStatus) error {
	req := struct {
		Status models.RecordStatus `json:"status"`
	}{Status: status}
	path := "/records/" + url.PathEscape(id) + "/status"
	return r.c.doJSON(ctx, http.MethodPut, path, "records", req, nil)
}

func (r *RecordsClient) send(ctx context.Context, method, path string, data models.DraftData, photos []PhotoPart) (*models.InwardRecord, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			"failed to encode record payload")
	}
	if err := mw.WriteField("data", string(payload)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			"failed to build record payload")
	}
	for _, p := range photos {
		part, err := mw.CreateFormFile(fmt.Sprintf("photos_%d", p.LineIndex), p.Filename)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				"failed to build record payload")
		}
		if _, err := io.Copy(part, p.Reader); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				"failed to read staged photo")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			"failed to build record payload")
	}

	req, err := http.NewRequestWithContext(ctx, method, r.c.base+path, &buf)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			"failed to build upstream request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var rec models.InwardRecord
	if err := r.c.do(req, "records", &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
