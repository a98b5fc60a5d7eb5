package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/autosave"
	"github.com/instrolab/lims-portal-api/internal/lockwatch"
	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

type ackSaver struct {
	mu    sync.Mutex
	saves []models.DraftData
	shape func(ack *models.DraftAck)
	saved chan models.DraftAck
}

func newAckSaver() *ackSaver {
	return &ackSaver{saved: make(chan models.DraftAck, 16)}
}

func (s *ackSaver) SaveDraft(ctx context.Context, draftID string, data models.DraftData) (*models.DraftAck, error) {
	s.mu.Lock()
	s.saves = append(s.saves, data)
	n := len(s.saves)
	s.mu.Unlock()

	id := draftID
	if id == "" {
		id = fmt.Sprintf("draft-%d", n)
	}
	ack := &models.DraftAck{DraftID: id, UpdatedAt: time.Now().UTC(), Data: data}
	if s.shape != nil {
		s.shape(ack)
	}
	select {
	case s.saved <- *ack:
	default:
	}
	return ack, nil
}

func (s *ackSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

type lockSourceStub struct {
	mu    sync.Mutex
	state models.LockState
}

func (s *lockSourceStub) Fetch(ctx context.Context, kind, id string) (models.LockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func newTestSession(t *testing.T, saver autosave.Saver, mutate func(*Params)) *Session {
	t.Helper()
	form, lines := FreshState("INW-26-0007", "2026-02-14", "Asha Pillai")
	params := Params{
		ID:              "sess-1",
		Mode:            ModeFresh,
		Owner:           models.StaffActor{UserID: "tech-1", FullName: "Asha Pillai"},
		Form:            form,
		Lines:           lines,
		StructuralEdits: true,
		Saver:           saver,
		AutosaveCfg:     autosave.Config{DebounceDelay: 30 * time.Millisecond, RetryDelay: 50 * time.Millisecond},
		Logger:          zap.NewNop(),
	}
	if mutate != nil {
		mutate(&params)
	}
	s := New(context.Background(), params)
	t.Cleanup(func() { _ = s.Close(true) })
	return s
}

func waitSave(t *testing.T, saver *ackSaver) models.DraftAck {
	t.Helper()
	select {
	case ack := <-saver.saved:
		return ack
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a draft save")
		return models.DraftAck{}
	}
}

func strPtr(v string) *string { return &v }

func TestFreshStateSeedsOneBlankRow(t *testing.T) {
	form, lines := FreshState("INW-26-0003", "2026-02-14", "Asha Pillai")

	assert.Equal(t, "INW-26-0003", form.InwardNo)
	assert.Equal(t, models.StatusDraft, form.Status)
	assert.Equal(t, "Asha Pillai", form.ReceivedBy)
	require.Len(t, lines, 1)
	assert.Equal(t, "INW-26-0003-1", lines[0].ItemNo)
	assert.Equal(t, models.RoutingInHouse, lines[0].Routing)
}

func TestAddAndRemoveRenumberContiguously(t *testing.T) {
	saver := newAckSaver()
	s := newTestSession(t, saver, nil)

	applied, err := s.AddLine()
	require.NoError(t, err)
	require.True(t, applied)
	_, err = s.AddLine()
	require.NoError(t, err)

	ok, err := s.AttachStaged(1, models.StagedPhoto{ID: "ph-1", Filename: "dial.jpg"})
	require.NoError(t, err)
	require.True(t, ok)

	staged, applied, err := s.RemoveLine(1)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, []string{"ph-1"}, staged)

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "INW-26-0007-1", lines[0].ItemNo)
	assert.Equal(t, "INW-26-0007-2", lines[1].ItemNo)
}

func TestLastLineCannotBeRemoved(t *testing.T) {
	s := newTestSession(t, newAckSaver(), nil)

	_, _, err := s.RemoveLine(0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStructuralEditsRefusedOnRecordSessions(t *testing.T) {
	s := newTestSession(t, newAckSaver(), func(p *Params) {
		p.Mode = ModeRecord
		p.RecordID = "rec-9"
		p.StructuralEdits = false
	})

	_, err := s.AddLine()
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStructuralEdit.Code, appErrors.FromError(err).Code)

	_, _, err = s.RemoveLine(0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStructuralEdit.Code, appErrors.FromError(err).Code)

	// Value edits stay allowed.
	applied, err := s.PatchLine(0, LinePatch{MaterialDesc: strPtr("Dial gauge")})
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestRoutingSwitchDropsOutsourceFields(t *testing.T) {
	s := newTestSession(t, newAckSaver(), nil)

	applied, err := s.SetRouting(0, models.RoutingOutsourced)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.PatchLine(0, LinePatch{SupplierName: strPtr("Precise Labs"), OutboundDCNo: strPtr("DC-88")})
	require.NoError(t, err)
	require.True(t, applied)
	require.NotNil(t, s.Lines()[0].Outsource)
	assert.Equal(t, "Precise Labs", s.Lines()[0].Outsource.SupplierName)

	_, err = s.SetRouting(0, models.RoutingInHouse)
	require.NoError(t, err)
	assert.Nil(t, s.Lines()[0].Outsource)

	// Switching back starts from a clean variant, not the old values.
	_, err = s.SetRouting(0, models.RoutingOutsourced)
	require.NoError(t, err)
	require.NotNil(t, s.Lines()[0].Outsource)
	assert.Empty(t, s.Lines()[0].Outsource.SupplierName)
}

func TestOutsourceFieldsRequireOutsourcedRouting(t *testing.T) {
	s := newTestSession(t, newAckSaver(), nil)

	_, err := s.PatchLine(0, LinePatch{SupplierName: strPtr("Precise Labs")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUnknownRoutingRejected(t *testing.T) {
	s := newTestSession(t, newAckSaver(), nil)

	_, err := s.SetRouting(0, models.RoutingMode("warranty"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLockedByOtherLeavesStateUntouched(t *testing.T) {
	source := &lockSourceStub{state: models.LockState{Locked: true, Holder: "supervisor-2"}}
	watcher := lockwatch.NewWatcher(source, "inward_record", "rec-9", 20*time.Millisecond, zap.NewNop())
	s := newTestSession(t, newAckSaver(), func(p *Params) {
		p.Mode = ModeRecord
		p.RecordID = "rec-9"
		p.StructuralEdits = false
		p.Lock = watcher
	})

	require.Eventually(t, s.LockedByOther, time.Second, 5*time.Millisecond)

	applied, err := s.PatchForm(FormPatch{CustomerName: strPtr("Acme Metrology")})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, s.Form().CustomerName)

	applied, err = s.PatchLine(0, LinePatch{MaterialDesc: strPtr("Vernier caliper")})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, s.Lines()[0].MaterialDesc)
}

func TestLockHeldBySelfDoesNotGate(t *testing.T) {
	source := &lockSourceStub{state: models.LockState{Locked: true, Holder: "tech-1"}}
	watcher := lockwatch.NewWatcher(source, "inward_record", "rec-9", 20*time.Millisecond, zap.NewNop())
	s := newTestSession(t, newAckSaver(), func(p *Params) {
		p.Mode = ModeRecord
		p.RecordID = "rec-9"
		p.StructuralEdits = false
		p.Lock = watcher
	})

	require.Eventually(t, func() bool { return s.LockState().Locked }, time.Second, 5*time.Millisecond)

	applied, err := s.PatchForm(FormPatch{CustomerName: strPtr("Acme Metrology")})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "Acme Metrology", s.Form().CustomerName)
}

func TestApplyAckMergesOnlyConfirmedPhotoURLs(t *testing.T) {
	saver := newAckSaver()
	saver.shape = func(ack *models.DraftAck) {
		if len(ack.Data.EquipmentList) > 0 {
			ack.Data.EquipmentList[0].PhotoURLs = []string{"uploads/inw/rec-1/dial.jpg"}
		}
	}
	s := newTestSession(t, saver, nil)

	_, err := s.AttachStaged(0, models.StagedPhoto{ID: "ph-7", Filename: "dial.jpg", PreviewURL: "/api/v1/previews/tok-7"})
	require.NoError(t, err)
	waitSave(t, saver)

	require.Eventually(t, func() bool {
		return len(s.Lines()[0].PhotoURLs) == 1
	}, time.Second, 5*time.Millisecond)

	line := s.Lines()[0]
	assert.Equal(t, []string{"uploads/inw/rec-1/dial.jpg"}, line.PhotoURLs)
	// The staged photo is still local; the echo must not clobber it.
	require.Len(t, line.Staged, 1)
	assert.Equal(t, "ph-7", line.Staged[0].ID)
}

func TestCloseRefusesDirtyWithoutForce(t *testing.T) {
	// A long debounce keeps the edit unsaved for the whole test.
	s := newTestSession(t, newAckSaver(), func(p *Params) {
		p.AutosaveCfg.DebounceDelay = time.Minute
	})

	applied, err := s.PatchForm(FormPatch{CustomerName: strPtr("Acme Metrology")})
	require.NoError(t, err)
	require.True(t, applied)

	err = s.Close(false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnsavedChanges.Code, appErrors.FromError(err).Code)
	assert.False(t, s.Closed())

	require.NoError(t, s.Close(true))
	assert.True(t, s.Closed())

	_, err = s.PatchForm(FormPatch{CustomerName: strPtr("ghost")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSessionClosed.Code, appErrors.FromError(err).Code)
}

func TestUntouchedSessionClosesCleanly(t *testing.T) {
	s := newTestSession(t, newAckSaver(), nil)
	require.NoError(t, s.Close(false))
}

func TestFallbackSerialCommitsOnFirstAckOnly(t *testing.T) {
	saver := newAckSaver()
	var mu sync.Mutex
	commits := 0
	s := newTestSession(t, saver, func(p *Params) {
		p.SerialFromFallback = true
		p.CommitSerial = func() error {
			mu.Lock()
			commits++
			mu.Unlock()
			return nil
		}
	})

	_, err := s.PatchForm(FormPatch{CustomerName: strPtr("Acme Metrology")})
	require.NoError(t, err)
	waitSave(t, saver)

	_, err = s.PatchForm(FormPatch{CustomerName: strPtr("Acme Metrology Pvt Ltd")})
	require.NoError(t, err)
	waitSave(t, saver)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return commits == 1
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, saver.count(), 2)
}

func TestMarkSubmittedAdvancesStatus(t *testing.T) {
	s := newTestSession(t, newAckSaver(), nil)

	s.MarkSubmitted("rec-42")

	assert.Equal(t, "rec-42", s.RecordID())
	assert.Equal(t, models.StatusRegistered, s.Form().Status)
}

func TestLinesReturnsIsolatedCopies(t *testing.T) {
	s := newTestSession(t, newAckSaver(), nil)

	_, err := s.SetRouting(0, models.RoutingOutsourced)
	require.NoError(t, err)

	lines := s.Lines()
	lines[0].MaterialDesc = "mutated"
	lines[0].Outsource.SupplierName = "mutated"

	assert.Empty(t, s.Lines()[0].MaterialDesc)
	assert.Empty(t, s.Lines()[0].Outsource.SupplierName)
}
