package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instrolab/lims-portal-api/internal/models"
)

func TestReconcileDraftNormalisesLegacyShapes(t *testing.T) {
	raw := []byte(`{
		"inward_no": "INW-26-0112",
		"received_date": "2026-02-10",
		"customer_name": "Acme Metrology",
		"status": "draft",
		"equipment_list": [
			{
				"item_no": "INW-26-0112-4",
				"material_desc": "Pressure gauge",
				"qty": 3,
				"calibration_mode": "warranty",
				"photoUrls": [" uploads/inw/a.jpg ", ""],
				"photos": ["gauge.jpg"],
				"preview_urls": ["blob:old-preview"]
			},
			{
				"material_desc": "Torque wrench",
				"qty": "2",
				"calibration_mode": "outsourced",
				"supplier_name": "Precise Labs",
				"outbound_dc_no": "DC-88",
				"images": ["uploads/inw/b.jpg"]
			}
		]
	}`)

	form, lines, err := ReconcileDraft(raw)
	require.NoError(t, err)

	assert.Equal(t, "INW-26-0112", form.InwardNo)
	assert.Equal(t, models.StatusDraft, form.Status)
	require.Len(t, lines, 2)

	// Row ids come from position, not from whatever the draft stored.
	assert.Equal(t, "INW-26-0112-1", lines[0].ItemNo)
	assert.Equal(t, "INW-26-0112-2", lines[1].ItemNo)

	// Numeric quantity reads back as the typed string; unknown routing
	// collapses to in-house; the alias photo key is honoured and trimmed.
	assert.Equal(t, "3", lines[0].Qty)
	assert.Equal(t, models.RoutingInHouse, lines[0].Routing)
	assert.Nil(t, lines[0].Outsource)
	assert.Equal(t, []string{"uploads/inw/a.jpg"}, lines[0].PhotoURLs)

	// Staged filenames and previews from the old process are unrecoverable.
	assert.Empty(t, lines[0].Staged)

	assert.Equal(t, "2", lines[1].Qty)
	require.NotNil(t, lines[1].Outsource)
	assert.Equal(t, "Precise Labs", lines[1].Outsource.SupplierName)
	assert.Equal(t, "DC-88", lines[1].Outsource.OutboundDCNo)
	assert.Equal(t, []string{"uploads/inw/b.jpg"}, lines[1].PhotoURLs)
}

func TestReconcileDraftCanonicalKeyWinsOverAliases(t *testing.T) {
	raw := []byte(`{
		"inward_no": "INW-26-0009",
		"equipment_list": [{
			"photo_urls": ["uploads/current.jpg"],
			"photoUrls": ["uploads/old-camel.jpg"],
			"images": ["uploads/oldest.jpg"]
		}]
	}`)

	_, lines, err := ReconcileDraft(raw)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, []string{"uploads/current.jpg"}, lines[0].PhotoURLs)
}

func TestReconcileDraftEmptyListSeedsBlankRow(t *testing.T) {
	raw := []byte(`{"inward_no": "INW-26-0050", "equipment_list": []}`)

	_, lines, err := ReconcileDraft(raw)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "INW-26-0050-1", lines[0].ItemNo)
	assert.Equal(t, models.RoutingInHouse, lines[0].Routing)
}

func TestReconcileDraftRejectsMalformedJSON(t *testing.T) {
	_, _, err := ReconcileDraft([]byte(`{"inward_no": `))
	require.Error(t, err)
}

func TestReconcileRecordTreatsStoredPhotosAsConfirmed(t *testing.T) {
	rec := models.InwardRecord{
		ID:           "rec-7",
		InwardNo:     "INW-26-0031",
		CustomerName: "Acme Metrology",
		Status:       models.StatusRegistered,
		EquipmentList: []models.RecordLine{
			{
				ItemNo:          "INW-26-0031-9",
				MaterialDesc:    "Micrometer",
				Qty:             2,
				InspeNotes:      "OK",
				CalibrationMode: models.RoutingInHouse,
				PhotoURLs:       []string{"uploads/inw/rec-7/mic.jpg"},
			},
			{
				MaterialDesc:    "Load cell",
				Qty:             1,
				CalibrationMode: models.RoutingOutsourced,
				SupplierName:    "Precise Labs",
				InboundDCNo:     "DC-91",
			},
		},
	}

	form, lines := ReconcileRecord(rec)

	assert.Equal(t, "INW-26-0031", form.InwardNo)
	assert.Equal(t, models.StatusRegistered, form.Status)
	require.Len(t, lines, 2)

	assert.Equal(t, "INW-26-0031-1", lines[0].ItemNo)
	assert.Equal(t, "2", lines[0].Qty)
	assert.Equal(t, []string{"uploads/inw/rec-7/mic.jpg"}, lines[0].PhotoURLs)
	assert.Empty(t, lines[0].Staged)

	require.NotNil(t, lines[1].Outsource)
	assert.Equal(t, "Precise Labs", lines[1].Outsource.SupplierName)
	assert.Equal(t, "DC-91", lines[1].Outsource.InboundDCNo)
}
