// Package snapshot projects live intake-session state into JSON-safe
// values. The serialized form is the autosave change detector: two
// snapshots compare equal exactly when no user-visible field differs.
// The same projection, normalised, is the draft save payload.
package snapshot

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/instrolab/lims-portal-api/internal/models"
)

// Snapshot is the comparison projection of a session. Values stay exactly
// as typed; staged files appear as their filenames only.
type Snapshot struct {
	InwardNo       string              `json:"inward_no"`
	ReceivedDate   string              `json:"received_date"`
	CustomerDCDate string              `json:"customer_dc_date"`
	CustomerID     string              `json:"customer_id"`
	CustomerName   string              `json:"customer_name"`
	ReceivedBy     string              `json:"received_by"`
	Status         models.RecordStatus `json:"status"`
	EquipmentList  []Line              `json:"equipment_list"`
}

// Line is one equipment row in the comparison projection. Outsource
// fields are flattened and empty while the variant is absent, so a
// routing switch changes the serialization deterministically.
type Line struct {
	ItemNo          string             `json:"item_no"`
	MaterialDesc    string             `json:"material_desc"`
	Make            string             `json:"make"`
	Model           string             `json:"model"`
	Range           string             `json:"range"`
	SerialNo        string             `json:"serial_no"`
	Qty             string             `json:"qty"`
	InspeNotes      string             `json:"inspe_notes"`
	CalibrationMode models.RoutingMode `json:"calibration_mode"`
	SupplierName    string             `json:"supplier_name"`
	OutboundDCNo    string             `json:"outbound_dc_no"`
	InboundDCNo     string             `json:"inbound_dc_no"`
	Photos          []string           `json:"photos"`
	PreviewURLs     []string           `json:"preview_urls"`
	PhotoURLs       []string           `json:"photo_urls"`
}

// Build projects form and equipment state into a Snapshot. Slices are
// copied by value so later edits to the session cannot bleed into a
// snapshot kept as a comparison baseline, and every list is present even
// when empty so "no photos" and "missing field" serialize identically.
func Build(form models.InwardForm, lines []models.EquipmentLine) Snapshot {
	s := Snapshot{
		InwardNo:       form.InwardNo,
		ReceivedDate:   form.ReceivedDate,
		CustomerDCDate: form.CustomerDCDate,
		CustomerID:     form.CustomerID,
		CustomerName:   form.CustomerName,
		ReceivedBy:     form.ReceivedBy,
		Status:         form.Status,
		EquipmentList:  make([]Line, 0, len(lines)),
	}

	for _, l := range lines {
		line := Line{
			ItemNo:          l.ItemNo,
			MaterialDesc:    l.MaterialDesc,
			Make:            l.Make,
			Model:           l.Model,
			Range:           l.Range,
			SerialNo:        l.SerialNo,
			Qty:             l.Qty,
			InspeNotes:      l.InspeNotes,
			CalibrationMode: l.Routing,
			Photos:          make([]string, 0, len(l.Staged)),
			PreviewURLs:     make([]string, 0, len(l.Staged)),
			PhotoURLs:       append(make([]string, 0, len(l.PhotoURLs)), l.PhotoURLs...),
		}
		if l.Outsource != nil {
			line.SupplierName = l.Outsource.SupplierName
			line.OutboundDCNo = l.Outsource.OutboundDCNo
			line.InboundDCNo = l.Outsource.InboundDCNo
		}
		for _, p := range l.Staged {
			line.Photos = append(line.Photos, p.Filename)
			line.PreviewURLs = append(line.PreviewURLs, p.PreviewURL)
		}
		s.EquipmentList = append(s.EquipmentList, line)
	}

	return s
}

// Serialize returns the canonical string form of the current state.
// Marshaling a Snapshot cannot fail; field order is fixed by the struct,
// so structurally identical input yields byte-identical output.
func Serialize(form models.InwardForm, lines []models.EquipmentLine) string {
	data, _ := json.Marshal(Build(form, lines))
	return string(data)
}

// Payload builds the draft save payload from the same state: quantities
// become numeric, blank inspection notes default to the no-deviation
// sentinel, and confirmed photo URLs are trimmed and filtered.
func Payload(form models.InwardForm, lines []models.EquipmentLine) models.DraftData {
	data := models.DraftData{
		InwardNo:       form.InwardNo,
		ReceivedDate:   form.ReceivedDate,
		CustomerDCDate: form.CustomerDCDate,
		CustomerID:     form.CustomerID,
		CustomerName:   form.CustomerName,
		ReceivedBy:     form.ReceivedBy,
		Status:         form.Status,
		EquipmentList:  make([]models.DraftLine, 0, len(lines)),
	}

	for _, l := range lines {
		line := models.DraftLine{
			ItemNo:          l.ItemNo,
			MaterialDesc:    l.MaterialDesc,
			Make:            l.Make,
			Model:           l.Model,
			Range:           l.Range,
			SerialNo:        l.SerialNo,
			Qty:             parseQty(l.Qty),
			InspeNotes:      defaultNotes(l.InspeNotes),
			CalibrationMode: l.Routing,
			Photos:          make([]string, 0, len(l.Staged)),
			PreviewURLs:     make([]string, 0, len(l.Staged)),
			PhotoURLs:       cleanURLs(l.PhotoURLs),
		}
		if l.Outsource != nil {
			line.SupplierName = l.Outsource.SupplierName
			line.OutboundDCNo = l.Outsource.OutboundDCNo
			line.InboundDCNo = l.Outsource.InboundDCNo
		}
		for _, p := range l.Staged {
			line.Photos = append(line.Photos, p.Filename)
			line.PreviewURLs = append(line.PreviewURLs, p.PreviewURL)
		}
		data.EquipmentList = append(data.EquipmentList, line)
	}

	return data
}

// HasContent reports whether the payload carries any user-entered value
// beyond the seeded defaults. The autosave engine uses it to decide
// whether a failed save is still worth retrying.
func HasContent(d models.DraftData) bool {
	if strings.TrimSpace(d.ReceivedDate) != "" ||
		strings.TrimSpace(d.CustomerDCDate) != "" ||
		strings.TrimSpace(d.CustomerID) != "" ||
		strings.TrimSpace(d.CustomerName) != "" ||
		strings.TrimSpace(d.ReceivedBy) != "" {
		return true
	}
	for _, l := range d.EquipmentList {
		if strings.TrimSpace(l.MaterialDesc) != "" ||
			strings.TrimSpace(l.Make) != "" ||
			strings.TrimSpace(l.Model) != "" ||
			strings.TrimSpace(l.Range) != "" ||
			strings.TrimSpace(l.SerialNo) != "" ||
			l.Qty > 0 ||
			l.InspeNotes != models.InspectionOK ||
			len(l.Photos) > 0 ||
			len(l.PhotoURLs) > 0 {
			return true
		}
	}
	return false
}

func parseQty(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func defaultNotes(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return models.InspectionOK
	}
	return raw
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if trimmed := strings.TrimSpace(u); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
