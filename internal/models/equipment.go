package models

// RoutingMode selects how an equipment line is calibrated.
type RoutingMode string

const (
	RoutingInHouse     RoutingMode = "in_house"
	RoutingOutsourced  RoutingMode = "outsourced"
	RoutingExternalLab RoutingMode = "external_lab"
)

// Valid reports whether the mode is one of the recognised values.
func (m RoutingMode) Valid() bool {
	switch m {
	case RoutingInHouse, RoutingOutsourced, RoutingExternalLab:
		return true
	}
	return false
}

// InspectionOK is the default inspection note applied when a line is
// persisted without an explicit deviation note.
const InspectionOK = "OK"

// OutsourceDetails carries the fields only the outsourced routing uses.
// A nil pointer on the line means the fields do not exist at all, which
// keeps them out of save payloads after a switch back to in-house.
type OutsourceDetails struct {
	SupplierName string `json:"supplier_name"`
	OutboundDCNo string `json:"outbound_dc_no"`
	InboundDCNo  string `json:"inbound_dc_no"`
}

// StagedPhoto references a photo held locally until record submission.
type StagedPhoto struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	PreviewURL string `json:"preview_url"`
}

// EquipmentLine is one editable row of the intake table. Values stay as
// typed; Staged holds local photos awaiting submission while PhotoURLs
// holds paths the server has already confirmed.
type EquipmentLine struct {
	ItemNo       string            `json:"item_no"`
	MaterialDesc string            `json:"material_desc"`
	Make         string            `json:"make"`
	Model        string            `json:"model"`
	Range        string            `json:"range"`
	SerialNo     string            `json:"serial_no"`
	Qty          string            `json:"qty"`
	InspeNotes   string            `json:"inspe_notes"`
	Routing      RoutingMode       `json:"calibration_mode"`
	Outsource    *OutsourceDetails `json:"outsource,omitempty"`
	Staged       []StagedPhoto     `json:"staged_photos"`
	PhotoURLs    []string          `json:"photo_urls"`
}

// HasDeviation reports whether the line carries a non-default inspection note.
func (l EquipmentLine) HasDeviation() bool {
	return l.InspeNotes != "" && l.InspeNotes != InspectionOK
}
