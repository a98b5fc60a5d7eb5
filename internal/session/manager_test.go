package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

func TestManagerGetUnknownSession(t *testing.T) {
	m := NewManager()

	_, err := m.Get("nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestManagerOwnershipEnforced(t *testing.T) {
	m := NewManager()
	s := newTestSession(t, newAckSaver(), nil)
	m.Put(s)

	got, err := m.GetOwned(s.ID(), models.StaffActor{UserID: "tech-1"})
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.GetOwned(s.ID(), models.StaffActor{UserID: "tech-2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestManagerCollectIdleLeavesActiveSessions(t *testing.T) {
	m := NewManager()
	stale := newTestSession(t, newAckSaver(), func(p *Params) { p.ID = "sess-stale" })
	active := newTestSession(t, newAckSaver(), func(p *Params) { p.ID = "sess-active" })
	m.Put(stale)
	m.Put(active)

	stale.mu.Lock()
	stale.lastActive = time.Now().UTC().Add(-time.Hour)
	stale.mu.Unlock()

	idle := m.CollectIdle(30 * time.Minute)
	require.Len(t, idle, 1)
	assert.Equal(t, "sess-stale", idle[0].ID())
	assert.Equal(t, 1, m.Len())

	_, err := m.Get("sess-active")
	assert.NoError(t, err)
}

func TestManagerDrainEmptiesRegistry(t *testing.T) {
	m := NewManager()
	m.Put(newTestSession(t, newAckSaver(), func(p *Params) { p.ID = "a" }))
	m.Put(newTestSession(t, newAckSaver(), func(p *Params) { p.ID = "b" }))

	drained := m.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, m.Len())
}
