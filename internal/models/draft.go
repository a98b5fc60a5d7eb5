package models

import "time"

// DraftData is the wire projection persisted by the drafts service. It is
// built from session state by the snapshot package: quantities are numeric,
// inspection notes are defaulted, and every list is present even when empty.
type DraftData struct {
	InwardNo       string       `json:"inward_no"`
	ReceivedDate   string       `json:"received_date"`
	CustomerDCDate string       `json:"customer_dc_date"`
	CustomerID     string       `json:"customer_id"`
	CustomerName   string       `json:"customer_name"`
	ReceivedBy     string       `json:"received_by"`
	Status         RecordStatus `json:"status"`
	EquipmentList  []DraftLine  `json:"equipment_list"`
}

// DraftLine is one persisted equipment row. Photos carries staged
// filenames only (no file handles), PreviewURLs the matching local
// preview references, and PhotoURLs the server-confirmed paths.
type DraftLine struct {
	ItemNo          string      `json:"item_no"`
	MaterialDesc    string      `json:"material_desc"`
	Make            string      `json:"make"`
	Model           string      `json:"model"`
	Range           string      `json:"range"`
	SerialNo        string      `json:"serial_no"`
	Qty             int         `json:"qty"`
	InspeNotes      string      `json:"inspe_notes"`
	CalibrationMode RoutingMode `json:"calibration_mode"`
	SupplierName    string      `json:"supplier_name,omitempty"`
	OutboundDCNo    string      `json:"outbound_dc_no,omitempty"`
	InboundDCNo     string      `json:"inbound_dc_no,omitempty"`
	Photos          []string    `json:"photos"`
	PreviewURLs     []string    `json:"preview_urls"`
	PhotoURLs       []string    `json:"photo_urls"`
}

// DraftAck is the drafts service response to a save. Data echoes the
// stored draft and is the only legitimate source for server-owned fields
// merged back into a live session.
type DraftAck struct {
	DraftID   string    `json:"draft_id"`
	UpdatedAt time.Time `json:"draft_updated_at"`
	Data      DraftData `json:"draft_data"`
}
