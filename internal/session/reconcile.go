package session

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// FreshState seeds the state a brand new intake form opens with: today's
// serial, one blank in-house row, draft status.
func FreshState(serial, receivedDate, receivedBy string) (models.InwardForm, []models.EquipmentLine) {
	form := models.InwardForm{
		InwardNo:     serial,
		ReceivedDate: receivedDate,
		ReceivedBy:   receivedBy,
		Status:       models.StatusDraft,
	}
	lines := []models.EquipmentLine{{
		ItemNo:  serial + "-1",
		Routing: models.RoutingInHouse,
	}}
	return form, lines
}

// flexString tolerates drafts written before quantities were normalised:
// the value may arrive as a JSON string or a bare number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type rawDraft struct {
	InwardNo       string    `json:"inward_no"`
	ReceivedDate   string    `json:"received_date"`
	CustomerDCDate string    `json:"customer_dc_date"`
	CustomerID     string    `json:"customer_id"`
	CustomerName   string    `json:"customer_name"`
	ReceivedBy     string    `json:"received_by"`
	Status         string    `json:"status"`
	EquipmentList  []rawLine `json:"equipment_list"`
}

type rawLine struct {
	MaterialDesc    string     `json:"material_desc"`
	Make            string     `json:"make"`
	Model           string     `json:"model"`
	Range           string     `json:"range"`
	SerialNo        string     `json:"serial_no"`
	Qty             flexString `json:"qty"`
	InspeNotes      string     `json:"inspe_notes"`
	CalibrationMode string     `json:"calibration_mode"`
	SupplierName    string     `json:"supplier_name"`
	OutboundDCNo    string     `json:"outbound_dc_no"`
	InboundDCNo     string     `json:"inbound_dc_no"`

	// Confirmed photo paths appeared under three different keys across
	// draft format revisions; the first non-empty list wins.
	PhotoURLs    []string `json:"photo_urls"`
	PhotoURLsAlt []string `json:"photoUrls"`
	Images       []string `json:"images"`
}

// ReconcileDraft rebuilds session state from a stored draft payload,
// tolerating older shapes. Staged files and their previews are dropped:
// the bytes did not survive the process that staged them. Row ids are
// renumbered from position, unknown routings collapse to in-house, and
// a draft with no rows reopens with a single blank one.
func ReconcileDraft(raw []byte) (models.InwardForm, []models.EquipmentLine, error) {
	var d rawDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return models.InwardForm{}, nil, appErrors.Wrap(err,
			appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "draft payload is not valid JSON")
	}

	form := models.InwardForm{
		InwardNo:       d.InwardNo,
		ReceivedDate:   d.ReceivedDate,
		CustomerDCDate: d.CustomerDCDate,
		CustomerID:     d.CustomerID,
		CustomerName:   d.CustomerName,
		ReceivedBy:     d.ReceivedBy,
		Status:         coerceStatus(d.Status),
	}

	lines := make([]models.EquipmentLine, 0, len(d.EquipmentList))
	for _, r := range d.EquipmentList {
		routing := coerceRouting(r.CalibrationMode)
		line := models.EquipmentLine{
			MaterialDesc: r.MaterialDesc,
			Make:         r.Make,
			Model:        r.Model,
			Range:        r.Range,
			SerialNo:     r.SerialNo,
			Qty:          string(r.Qty),
			InspeNotes:   r.InspeNotes,
			Routing:      routing,
			PhotoURLs:    pickPhotoURLs(r),
		}
		if routing == models.RoutingOutsourced {
			line.Outsource = &models.OutsourceDetails{
				SupplierName: r.SupplierName,
				OutboundDCNo: r.OutboundDCNo,
				InboundDCNo:  r.InboundDCNo,
			}
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, models.EquipmentLine{Routing: models.RoutingInHouse})
	}
	Renumber(form.InwardNo, lines)
	return form, lines, nil
}

// ReconcileRecord maps a committed record into editable session state.
// Stored photo paths are already confirmed, quantities become as-typed
// strings again, and row ids are renumbered from position.
func ReconcileRecord(rec models.InwardRecord) (models.InwardForm, []models.EquipmentLine) {
	form := models.InwardForm{
		InwardNo:       rec.InwardNo,
		ReceivedDate:   rec.ReceivedDate,
		CustomerDCDate: rec.CustomerDCDate,
		CustomerID:     rec.CustomerID,
		CustomerName:   rec.CustomerName,
		ReceivedBy:     rec.ReceivedBy,
		Status:         rec.Status,
	}
	if !validStatus(form.Status) {
		form.Status = models.StatusRegistered
	}

	lines := make([]models.EquipmentLine, 0, len(rec.EquipmentList))
	for _, r := range rec.EquipmentList {
		routing := r.CalibrationMode
		if !routing.Valid() {
			routing = models.RoutingInHouse
		}
		line := models.EquipmentLine{
			MaterialDesc: r.MaterialDesc,
			Make:         r.Make,
			Model:        r.Model,
			Range:        r.Range,
			SerialNo:     r.SerialNo,
			Qty:          strconv.Itoa(r.Qty),
			InspeNotes:   r.InspeNotes,
			Routing:      routing,
			PhotoURLs:    cleanList(r.PhotoURLs),
		}
		if routing == models.RoutingOutsourced {
			line.Outsource = &models.OutsourceDetails{
				SupplierName: r.SupplierName,
				OutboundDCNo: r.OutboundDCNo,
				InboundDCNo:  r.InboundDCNo,
			}
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, models.EquipmentLine{Routing: models.RoutingInHouse})
	}
	Renumber(form.InwardNo, lines)
	return form, lines
}

func pickPhotoURLs(r rawLine) []string {
	for _, list := range [][]string{r.PhotoURLs, r.PhotoURLsAlt, r.Images} {
		if cleaned := cleanList(list); len(cleaned) > 0 {
			return cleaned
		}
	}
	return nil
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func coerceRouting(v string) models.RoutingMode {
	m := models.RoutingMode(v)
	if !m.Valid() {
		return models.RoutingInHouse
	}
	return m
}

func coerceStatus(v string) models.RecordStatus {
	s := models.RecordStatus(v)
	if !validStatus(s) {
		return models.StatusDraft
	}
	return s
}

func validStatus(s models.RecordStatus) bool {
	switch s {
	case models.StatusDraft, models.StatusRegistered, models.StatusSentForReview, models.StatusReviewed:
		return true
	}
	return false
}
