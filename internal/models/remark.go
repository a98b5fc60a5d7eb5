package models

// RemarkOK is the default remark recorded for lines the customer left
// without comment when finalizing a review.
const RemarkOK = "Ok"

// CustomerRemark is a single per-line review annotation keyed by the
// line's item number.
type CustomerRemark struct {
	LineID string `json:"line_id"`
	Remark string `json:"remark"`
}
