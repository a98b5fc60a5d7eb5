package dto

import (
	"time"

	"github.com/instrolab/lims-portal-api/internal/models"
)

// Session entry modes.
const (
	ModeFresh  = "fresh"
	ModeDraft  = "draft"
	ModeRecord = "record"
)

// OpenSessionRequest starts an intake session in one of three modes:
// fresh registration, draft resume, or edit of a committed record.
type OpenSessionRequest struct {
	Mode     string `json:"mode" validate:"required,oneof=fresh draft record"`
	DraftID  string `json:"draft_id" validate:"required_if=Mode draft"`
	RecordID string `json:"record_id" validate:"required_if=Mode record"`
}

// UpdateFormRequest patches header fields. Only non-nil fields are applied.
type UpdateFormRequest struct {
	ReceivedDate   *string `json:"received_date"`
	CustomerDCDate *string `json:"customer_dc_date"`
	CustomerID     *string `json:"customer_id"`
	CustomerName   *string `json:"customer_name"`
	ReceivedBy     *string `json:"received_by"`
}

// UpdateLineRequest patches one equipment row. Only non-nil fields are
// applied. Outsource fields are accepted only while the row is routed
// to an outsourced supplier.
type UpdateLineRequest struct {
	MaterialDesc *string `json:"material_desc"`
	Make         *string `json:"make"`
	Model        *string `json:"model"`
	Range        *string `json:"range"`
	SerialNo     *string `json:"serial_no"`
	Qty          *string `json:"qty"`
	InspeNotes   *string `json:"inspe_notes"`
	SupplierName *string `json:"supplier_name"`
	OutboundDCNo *string `json:"outbound_dc_no"`
	InboundDCNo  *string `json:"inbound_dc_no"`
}

// SetRoutingRequest switches the calibration routing of one row.
type SetRoutingRequest struct {
	Mode string `json:"mode" validate:"required,oneof=in_house outsourced external_lab"`
}

// CloseSessionRequest controls teardown. Without force, a session holding
// unsaved changes refuses to close.
type CloseSessionRequest struct {
	Force bool `json:"force"`
}

// PhotoView describes one photo slot on a row, staged or confirmed.
type PhotoView struct {
	ID        string `json:"id,omitempty"`
	Filename  string `json:"filename,omitempty"`
	URL       string `json:"url"`
	Confirmed bool   `json:"confirmed"`
}

// LineView is the API projection of one equipment row.
type LineView struct {
	ItemNo          string                   `json:"item_no"`
	MaterialDesc    string                   `json:"material_desc"`
	Make            string                   `json:"make"`
	Model           string                   `json:"model"`
	Range           string                   `json:"range"`
	SerialNo        string                   `json:"serial_no"`
	Qty             string                   `json:"qty"`
	InspeNotes      string                   `json:"inspe_notes"`
	CalibrationMode models.RoutingMode       `json:"calibration_mode"`
	Outsource       *models.OutsourceDetails `json:"outsource,omitempty"`
	Photos          []PhotoView              `json:"photos"`
	HasDeviation    bool                     `json:"has_deviation"`
}

// AutosaveView reports the autosave engine status for the session.
type AutosaveView struct {
	State       string     `json:"state"`
	DraftID     string     `json:"draft_id,omitempty"`
	Dirty       bool       `json:"dirty"`
	LastSavedAt *time.Time `json:"last_saved_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// LockView reports the advisory lock status last observed for the record.
type LockView struct {
	Locked bool   `json:"locked"`
	Holder string `json:"holder,omitempty"`
}

// SessionView is the full API projection of an intake session.
type SessionView struct {
	ID               string            `json:"id"`
	Mode             string            `json:"mode"`
	RecordID         string            `json:"record_id,omitempty"`
	ResumePath       string            `json:"resume_path,omitempty"`
	Form             models.InwardForm `json:"form"`
	Lines            []LineView        `json:"equipment_list"`
	Autosave         AutosaveView      `json:"autosave"`
	Lock             LockView          `json:"lock"`
	StructuralEdits  bool              `json:"structural_edits_allowed"`
	SerialFromLocal  bool              `json:"serial_from_local_fallback,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// MutationResult wraps a session mutation outcome. Applied is false when
// the record lock gated the change into a no-op.
type MutationResult struct {
	Applied bool        `json:"applied"`
	Session SessionView `json:"session"`
}

// SubmitResult reports a record commit. Applied is false when the record
// lock gated the submit into a no-op; Lock then names the holder.
type SubmitResult struct {
	Applied  bool                `json:"applied"`
	RecordID string              `json:"record_id,omitempty"`
	InwardNo string              `json:"inward_no"`
	Status   models.RecordStatus `json:"status,omitempty"`
	Lock     LockView            `json:"lock"`
}
