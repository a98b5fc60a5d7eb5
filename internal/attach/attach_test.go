package attach

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// storeStub records save and delete calls; files live in a temp dir so
// Open returns real handles.
type storeStub struct {
	mu      sync.Mutex
	dir     string
	saves   []string
	deletes map[string]int
}

func newStoreStub(t *testing.T) *storeStub {
	return &storeStub{dir: t.TempDir(), deletes: make(map[string]int)}
}

func (s *storeStub) SaveStream(filename string, r io.Reader) (string, error) {
	s.mu.Lock()
	s.saves = append(s.saves, filename)
	s.mu.Unlock()
	full := filepath.Join(s.dir, filename)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return filename, os.WriteFile(full, data, 0o644)
}

func (s *storeStub) Open(filename string) (*os.File, error) {
	return os.Open(filepath.Join(s.dir, filename))
}

func (s *storeStub) Delete(filename string) error {
	s.mu.Lock()
	s.deletes[filename]++
	s.mu.Unlock()
	return os.Remove(filepath.Join(s.dir, filename))
}

func (s *storeStub) deleteCount(filename string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[filename]
}

func (s *storeStub) totalDeletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.deletes {
		total += n
	}
	return total
}

func testManager(t *testing.T) (*Manager, *storeStub) {
	store := newStoreStub(t)
	m := NewManager(store, Config{
		MaxFileSizeBytes: 1024,
		AllowedMIMEs:     []string{"image/jpeg", "image/png"},
	}, nil)
	return m, store
}

func stage(t *testing.T, m *Manager, sessionID, filename string) string {
	t.Helper()
	photo, err := m.Stage(sessionID, filename, "image/jpeg", 12, strings.NewReader("fake-jpg-data"))
	require.NoError(t, err)
	return photo.ID
}

func TestStageRegistersPreview(t *testing.T) {
	m, store := testManager(t)

	photo, err := m.Stage("sess-1", "gauge.jpg", "image/jpeg", 12, strings.NewReader("fake-jpg-data"))
	require.NoError(t, err)
	assert.NotEmpty(t, photo.ID)
	assert.Equal(t, "gauge.jpg", photo.Filename)
	assert.True(t, strings.HasPrefix(photo.PreviewURL, "/api/v1/previews/"))
	assert.Equal(t, 1, m.Count("sess-1"))
	require.Len(t, store.saves, 1)
	assert.True(t, strings.HasPrefix(store.saves[0], filepath.Join("photos", "sess-1")))

	token := strings.TrimPrefix(photo.PreviewURL, "/api/v1/previews/")
	f, contentType, err := m.OpenPreview(token)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "image/jpeg", contentType)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "fake-jpg-data", string(data))
}

func TestStageRejectsOversizeAndBadMIME(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Stage("sess-1", "big.jpg", "image/jpeg", 5000, strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, appErrors.FromError(err).Code)

	_, err = m.Stage("sess-1", "doc.pdf", "application/pdf", 10, strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReleasePhotoExactlyOnce(t *testing.T) {
	m, store := testManager(t)
	id := stage(t, m, "sess-1", "a.jpg")

	m.ReleasePhoto("sess-1", id)
	m.ReleasePhoto("sess-1", id)
	m.ReleasePhoto("sess-1", "unknown")

	assert.Equal(t, 1, store.totalDeletes())
	assert.Equal(t, 0, m.Count("sess-1"))
}

func TestRowRemovalThenTeardownNoDoubleRelease(t *testing.T) {
	m, store := testManager(t)
	rowPhotoA := stage(t, m, "sess-1", "a.jpg")
	rowPhotoB := stage(t, m, "sess-1", "b.jpg")
	kept := stage(t, m, "sess-1", "c.jpg")

	// Row removal releases the row's photos.
	m.ReleasePhotos("sess-1", []string{rowPhotoA, rowPhotoB})
	assert.Equal(t, 2, store.totalDeletes())
	assert.Equal(t, 1, m.Count("sess-1"))

	// Teardown releases only what is still held.
	m.ReleaseSession("sess-1")
	assert.Equal(t, 3, store.totalDeletes())
	assert.Equal(t, 0, m.Count("sess-1"))

	// Every file was deleted exactly once.
	store.mu.Lock()
	for path, n := range store.deletes {
		assert.Equal(t, 1, n, "path %s", path)
	}
	store.mu.Unlock()

	// A second teardown is a no-op.
	m.ReleaseSession("sess-1")
	assert.Equal(t, 3, store.totalDeletes())
	_ = kept
}

func TestReleasedPreviewGone(t *testing.T) {
	m, _ := testManager(t)
	photo, err := m.Stage("sess-1", "a.jpg", "image/jpeg", 12, strings.NewReader("fake-jpg-data"))
	require.NoError(t, err)

	token := strings.TrimPrefix(photo.PreviewURL, "/api/v1/previews/")
	m.ReleasePhoto("sess-1", photo.ID)

	_, _, err = m.OpenPreview(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReleaseScopedToOwningSession(t *testing.T) {
	m, store := testManager(t)
	id := stage(t, m, "sess-1", "a.jpg")

	// Another session cannot release a photo it does not own.
	m.ReleasePhoto("sess-2", id)
	assert.Equal(t, 0, store.totalDeletes())
	assert.Equal(t, 1, m.Count("sess-1"))

	_, err := m.OpenPhoto("sess-2", id)
	require.Error(t, err)

	f, err := m.OpenPhoto("sess-1", id)
	require.NoError(t, err)
	f.Close()
}

func TestSafeNameStripsPathComponents(t *testing.T) {
	m, _ := testManager(t)
	photo, err := m.Stage("sess-1", "..\\..\\evil\\gauge.jpg", "image/jpeg", 12, strings.NewReader("fake"))
	require.NoError(t, err)
	assert.Equal(t, "gauge.jpg", photo.Filename)
}
