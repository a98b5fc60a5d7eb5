package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

type recordReaderStub struct {
	mu     sync.Mutex
	record *models.InwardRecord
	err    error
	calls  int
}

func (r *recordReaderStub) GetRecord(ctx context.Context, id string) (*models.InwardRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	rec := *r.record
	return &rec, nil
}

func (r *recordReaderStub) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
	return nil
}

type countingLockSource struct {
	lockSourceStubSvc
	calls int
	err   error
}

func (c *countingLockSource) Fetch(ctx context.Context, kind, id string) (models.LockState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return models.LockState{}, c.err
	}
	return c.state, nil
}

func registeredRecord() *models.InwardRecord {
	return &models.InwardRecord{
		ID:           "rec-1",
		InwardNo:     "INW-26-0042",
		ReceivedDate: "2026-02-11",
		CustomerName: "Meters & More",
		ReceivedBy:   "Asha Pillai",
		Status:       models.StatusRegistered,
		EquipmentList: []models.RecordLine{
			{
				ItemNo:          "INW-26-0042-1",
				MaterialDesc:    "Pressure gauge",
				Qty:             2,
				InspeNotes:      "OK",
				CalibrationMode: models.RoutingInHouse,
				PhotoURLs:       []string{`uploads\photos\a.jpg`},
			},
		},
		UpdatedAt: time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC),
	}
}

func TestGetDetailProjectsRecordForDisplay(t *testing.T) {
	reader := &recordReaderStub{record: registeredRecord()}
	locks := &countingLockSource{}
	svc := NewRecordService(reader, locks, nil, "https://lims.internal", zap.NewNop())

	view, hit, err := svc.GetDetail(context.Background(), "rec-1")
	require.NoError(t, err)

	assert.False(t, hit)
	assert.Equal(t, "INW-26-0042", view.InwardNo)
	assert.Equal(t, models.StatusRegistered, view.Status)
	assert.True(t, strings.HasPrefix(view.QRCode, "data:image/png;base64,"))
	require.Len(t, view.Equipment, 1)
	line := view.Equipment[0]
	assert.Equal(t, []string{"https://lims.internal/uploads/photos/a.jpg"}, line.PhotoURLs)
	assert.True(t, strings.HasPrefix(line.Barcode, "data:image/png;base64,"))
	assert.Equal(t, 2, line.Qty)
}

func TestGetDetailCachesBodyButNotLock(t *testing.T) {
	reader := &recordReaderStub{record: registeredRecord()}
	locks := &countingLockSource{}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	svc := NewRecordService(reader, locks, cache, "https://lims.internal", zap.NewNop())

	first, hit, err := svc.GetDetail(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, first.Lock.Locked)

	locks.set(models.LockState{Locked: true, Holder: "tech-2"})

	second, hit, err := svc.GetDetail(context.Background(), "rec-1")
	require.NoError(t, err)

	// The body came from cache; the lock state did not.
	assert.True(t, hit)
	assert.Equal(t, 1, reader.callCount())
	assert.Equal(t, first.InwardNo, second.InwardNo)
	assert.True(t, second.Lock.Locked)
	assert.Equal(t, "tech-2", second.Lock.Holder)
}

func TestGetDetailDegradesWhenLockSourceDown(t *testing.T) {
	reader := &recordReaderStub{record: registeredRecord()}
	locks := &countingLockSource{err: fmt.Errorf("redis down")}
	svc := NewRecordService(reader, locks, nil, "", zap.NewNop())

	view, _, err := svc.GetDetail(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.False(t, view.Lock.Locked)
	assert.Empty(t, view.Lock.Holder)
}

func TestGetDetailPropagatesNotFound(t *testing.T) {
	reader := &recordReaderStub{err: appErrors.Clone(appErrors.ErrNotFound, "resource not found upstream")}
	svc := NewRecordService(reader, &countingLockSource{}, nil, "", zap.NewNop())

	_, _, err := svc.GetDetail(context.Background(), "rec-404")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
