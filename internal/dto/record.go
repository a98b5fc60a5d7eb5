package dto

import (
	"time"

	"github.com/instrolab/lims-portal-api/internal/models"
)

// RecordLineView is one committed equipment row with display-ready photo
// URLs and label artwork.
type RecordLineView struct {
	ItemNo          string             `json:"item_no"`
	MaterialDesc    string             `json:"material_desc"`
	Make            string             `json:"make"`
	Model           string             `json:"model"`
	Range           string             `json:"range"`
	SerialNo        string             `json:"serial_no"`
	Qty             int                `json:"qty"`
	InspeNotes      string             `json:"inspe_notes"`
	CalibrationMode models.RoutingMode `json:"calibration_mode"`
	SupplierName    string             `json:"supplier_name,omitempty"`
	OutboundDCNo    string             `json:"outbound_dc_no,omitempty"`
	InboundDCNo     string             `json:"inbound_dc_no,omitempty"`
	PhotoURLs       []string           `json:"photo_urls"`
	Remark          string             `json:"remark,omitempty"`
	Barcode         string             `json:"barcode,omitempty"`
}

// ExportView returns a generated register export with its signed,
// expiring download location.
type ExportView struct {
	URL       string              `json:"url"`
	Token     string              `json:"token"`
	Format    models.ExportFormat `json:"format"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// RecordDetailView is the full committed record as shown in the register.
type RecordDetailView struct {
	ID             string              `json:"id"`
	InwardNo       string              `json:"inward_no"`
	ReceivedDate   string              `json:"received_date"`
	CustomerDCDate string              `json:"customer_dc_date"`
	CustomerID     string              `json:"customer_id"`
	CustomerName   string              `json:"customer_name"`
	ReceivedBy     string              `json:"received_by"`
	Status         models.RecordStatus `json:"status"`
	Lock           LockView            `json:"lock"`
	Equipment      []RecordLineView    `json:"equipment_list"`
	QRCode         string              `json:"qr_code,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}
