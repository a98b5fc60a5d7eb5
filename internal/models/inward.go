package models

import "time"

// RecordStatus tracks an inward record through its lifecycle.
type RecordStatus string

const (
	StatusDraft         RecordStatus = "draft"
	StatusRegistered    RecordStatus = "registered"
	StatusSentForReview RecordStatus = "sent_for_review"
	StatusReviewed      RecordStatus = "customer_reviewed"
)

// InwardForm is the header portion of an inward record under edit.
// All values are kept as entered; normalisation happens when the save
// payload is built.
type InwardForm struct {
	InwardNo       string       `json:"inward_no"`
	ReceivedDate   string       `json:"received_date"`
	CustomerDCDate string       `json:"customer_dc_date"`
	CustomerID     string       `json:"customer_id"`
	CustomerName   string       `json:"customer_name"`
	ReceivedBy     string       `json:"received_by"`
	Status         RecordStatus `json:"status"`
}

// InwardRecord is a committed record as returned by the records service.
type InwardRecord struct {
	ID             string       `json:"id"`
	InwardNo       string       `json:"inward_no"`
	ReceivedDate   string       `json:"received_date"`
	CustomerDCDate string       `json:"customer_dc_date"`
	CustomerID     string       `json:"customer_id"`
	CustomerName   string       `json:"customer_name"`
	ReceivedBy     string       `json:"received_by"`
	Status         RecordStatus `json:"status"`
	EquipmentList  []RecordLine `json:"equipment_list"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// RecordLine is a committed equipment row. Photo paths arrive exactly as
// stored upstream and may need origin joining before display.
type RecordLine struct {
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
	PhotoURLs       []string    `json:"photo_urls"`
	Remark          string      `json:"remark,omitempty"`
}
