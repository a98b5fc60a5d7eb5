package dto

import (
	"time"

	"github.com/instrolab/lims-portal-api/internal/models"
)

// IssueReviewLinkRequest asks the gateway to mint a customer review link
// for a committed record. The optional access code is stored hashed.
type IssueReviewLinkRequest struct {
	AccessCode string `json:"access_code" validate:"omitempty,min=4,max=12"`
	TTLHours   int    `json:"ttl_hours" validate:"omitempty,min=1,max=720"`
}

// ReviewLinkView returns the minted link.
type ReviewLinkView struct {
	LinkID        string    `json:"link_id"`
	URL           string    `json:"url"`
	ExpiresAt     time.Time `json:"expires_at"`
	HasAccessCode bool      `json:"has_access_code"`
}

// UnlockReviewRequest exchanges a code-restricted review token plus the
// link's access code for a token that can read the record.
type UnlockReviewRequest struct {
	AccessCode string `json:"access_code" validate:"required,min=4,max=12"`
}

// ReviewTokenView carries a minted review token.
type ReviewTokenView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReviewLineView is the customer-facing projection of one equipment row.
type ReviewLineView struct {
	ItemNo       string   `json:"item_no"`
	MaterialDesc string   `json:"material_desc"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Range        string   `json:"range"`
	SerialNo     string   `json:"serial_no"`
	Qty          int      `json:"qty"`
	InspeNotes   string   `json:"inspe_notes"`
	PhotoURLs    []string `json:"photo_urls"`
	Remark       string   `json:"remark"`
}

// ReviewRecordView is the record as presented in the review portal.
type ReviewRecordView struct {
	RecordID     string              `json:"record_id"`
	InwardNo     string              `json:"inward_no"`
	CustomerName string              `json:"customer_name"`
	ReceivedDate string              `json:"received_date"`
	Status       models.RecordStatus `json:"status"`
	Lock         LockView            `json:"lock"`
	Lines        []ReviewLineView    `json:"equipment_list"`
	Finalized    bool                `json:"finalized"`
}

// SetRemarkRequest stores a per-line annotation. An empty remark clears
// the stored value; cleared lines fall back to the default on finalize.
type SetRemarkRequest struct {
	Remark string `json:"remark" validate:"max=500"`
}

// ReviewMutationResult wraps a review mutation outcome. Applied is false
// when the record lock gated the change into a no-op.
type ReviewMutationResult struct {
	Applied bool             `json:"applied"`
	Record  ReviewRecordView `json:"record"`
}
