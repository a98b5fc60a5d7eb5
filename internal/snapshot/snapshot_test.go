package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instrolab/lims-portal-api/internal/models"
)

func sampleForm() models.InwardForm {
	return models.InwardForm{
		InwardNo:     "INW-26-0042",
		ReceivedDate: "2026-08-20",
		CustomerID:   "CUST-9",
		CustomerName: "Precision Tools Ltd",
		ReceivedBy:   "s.nair",
		Status:       models.StatusDraft,
	}
}

func sampleLines() []models.EquipmentLine {
	return []models.EquipmentLine{
		{
			ItemNo:       "INW-26-0042-1",
			MaterialDesc: "Pressure gauge",
			Make:         "WIKA",
			Qty:          "2",
			InspeNotes:   "dial cracked",
			Routing:      models.RoutingOutsourced,
			Outsource: &models.OutsourceDetails{
				SupplierName: "Accucal Services",
				OutboundDCNo: "DC-118",
			},
			Staged: []models.StagedPhoto{
				{ID: "p1", Filename: "gauge-front.jpg", PreviewURL: "/api/v1/previews/t1"},
			},
			PhotoURLs: []string{"uploads/old.jpg"},
		},
		{
			ItemNo:  "INW-26-0042-2",
			Routing: models.RoutingInHouse,
		},
	}
}

func TestSerializeDeterministic(t *testing.T) {
	form := sampleForm()
	lines := sampleLines()

	first := Serialize(form, lines)
	second := Serialize(form, lines)
	assert.Equal(t, first, second)

	// Structurally identical input built from scratch serializes
	// byte-identically regardless of object identity.
	again := Serialize(sampleForm(), sampleLines())
	assert.Equal(t, first, again)
}

func TestSerializeDivergesOnUserVisibleChange(t *testing.T) {
	form := sampleForm()
	lines := sampleLines()
	base := Serialize(form, lines)

	changed := sampleLines()
	changed[0].MaterialDesc = "Pressure gauge 0-40 bar"
	assert.NotEqual(t, base, Serialize(form, changed))

	changed = sampleLines()
	changed[1].Qty = "3"
	assert.NotEqual(t, base, Serialize(form, changed))

	otherForm := sampleForm()
	otherForm.ReceivedBy = "k.rao"
	assert.NotEqual(t, base, Serialize(otherForm, lines))
}

func TestSerializeComparesFilesByNameOnly(t *testing.T) {
	form := sampleForm()
	lines := sampleLines()
	base := Serialize(form, lines)

	// A different staged-photo ID with the same filename and preview is
	// not a user-visible difference.
	relabeled := sampleLines()
	relabeled[0].Staged[0].ID = "p-other"
	assert.Equal(t, base, Serialize(form, relabeled))

	renamed := sampleLines()
	renamed[0].Staged[0].Filename = "gauge-side.jpg"
	assert.NotEqual(t, base, Serialize(form, renamed))
}

func TestBuildCopiesSlicesByValue(t *testing.T) {
	form := sampleForm()
	lines := sampleLines()

	snap := Build(form, lines)
	baseline := Serialize(form, lines)

	// Mutating the session after the fact must not bleed into the
	// already-built projection.
	lines[0].PhotoURLs[0] = "uploads/replaced.jpg"
	lines[0].Staged[0].Filename = "other.jpg"

	assert.Equal(t, "uploads/old.jpg", snap.EquipmentList[0].PhotoURLs[0])
	assert.Equal(t, "gauge-front.jpg", snap.EquipmentList[0].Photos[0])
	assert.NotEqual(t, baseline, Serialize(form, lines))
}

func TestSerializeEmptyPhotoListsAsEmptySequences(t *testing.T) {
	form := sampleForm()
	line := models.EquipmentLine{ItemNo: "INW-26-0042-1", Routing: models.RoutingInHouse}

	out := Serialize(form, []models.EquipmentLine{line})
	assert.Contains(t, out, `"photos":[]`)
	assert.Contains(t, out, `"preview_urls":[]`)
	assert.Contains(t, out, `"photo_urls":[]`)
	assert.NotContains(t, out, "null")
}

func TestPayloadNormalises(t *testing.T) {
	form := sampleForm()
	lines := []models.EquipmentLine{
		{
			ItemNo:     "INW-26-0042-1",
			Qty:        " 4 ",
			InspeNotes: "",
			Routing:    models.RoutingInHouse,
			PhotoURLs:  []string{"  uploads/a.jpg ", "", "   "},
		},
		{
			ItemNo:     "INW-26-0042-2",
			Qty:        "not-a-number",
			InspeNotes: "bent pointer",
			Routing:    models.RoutingInHouse,
		},
	}

	payload := Payload(form, lines)
	require.Len(t, payload.EquipmentList, 2)

	first := payload.EquipmentList[0]
	assert.Equal(t, 4, first.Qty)
	assert.Equal(t, models.InspectionOK, first.InspeNotes)
	assert.Equal(t, []string{"uploads/a.jpg"}, first.PhotoURLs)

	second := payload.EquipmentList[1]
	assert.Equal(t, 0, second.Qty)
	assert.Equal(t, "bent pointer", second.InspeNotes)
}

func TestPayloadFlattensOutsourceOnlyWhenPresent(t *testing.T) {
	form := sampleForm()
	payload := Payload(form, sampleLines())

	assert.Equal(t, "Accucal Services", payload.EquipmentList[0].SupplierName)
	assert.Equal(t, "DC-118", payload.EquipmentList[0].OutboundDCNo)
	assert.Empty(t, payload.EquipmentList[1].SupplierName)
	assert.Empty(t, payload.EquipmentList[1].OutboundDCNo)
	assert.Empty(t, payload.EquipmentList[1].InboundDCNo)
}

func TestHasContent(t *testing.T) {
	empty := Payload(models.InwardForm{InwardNo: "INW-26-0042", Status: models.StatusDraft},
		[]models.EquipmentLine{{ItemNo: "INW-26-0042-1", Routing: models.RoutingInHouse}})
	assert.False(t, HasContent(empty))

	typed := Payload(models.InwardForm{InwardNo: "INW-26-0042", Status: models.StatusDraft},
		[]models.EquipmentLine{{ItemNo: "INW-26-0042-1", MaterialDesc: "caliper", Routing: models.RoutingInHouse}})
	assert.True(t, HasContent(typed))

	noted := Payload(models.InwardForm{InwardNo: "INW-26-0042", Status: models.StatusDraft},
		[]models.EquipmentLine{{ItemNo: "INW-26-0042-1", InspeNotes: "scratched", Routing: models.RoutingInHouse}})
	assert.True(t, HasContent(noted))
}
