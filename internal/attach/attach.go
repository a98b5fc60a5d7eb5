// Package attach manages photos staged locally between file selection
// and record submission. Each staged photo gets a preview token; the
// registry guarantees every token is released exactly once whether the
// trigger is an explicit photo removal, a row removal, or session
// teardown.
package attach

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// Store is the staging filesystem the manager writes through.
type Store interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// Config bounds uploads.
type Config struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	PreviewPrefix    string
}

type entry struct {
	sessionID   string
	photoID     string
	token       string
	filename    string
	path        string
	contentType string
	size        int64
}

// Manager is the process-wide staged-photo registry.
type Manager struct {
	store  Store
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	byToken   map[string]*entry
	byPhoto   map[string]*entry
	bySession map[string]map[string]*entry
}

// NewManager builds the registry.
func NewManager(store Store, cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 10 * 1024 * 1024
	}
	if cfg.PreviewPrefix == "" {
		cfg.PreviewPrefix = "/api/v1/previews"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		cfg:       cfg,
		logger:    logger,
		byToken:   make(map[string]*entry),
		byPhoto:   make(map[string]*entry),
		bySession: make(map[string]map[string]*entry),
	}
}

// Stage validates and persists one uploaded photo, synthesizes its
// preview reference, and registers it under the owning session.
func (m *Manager) Stage(sessionID, filename, contentType string, size int64, r io.Reader) (models.StagedPhoto, error) {
	if sessionID == "" {
		return models.StagedPhoto{}, appErrors.Clone(appErrors.ErrValidation, "session id required")
	}
	if size > m.cfg.MaxFileSizeBytes {
		return models.StagedPhoto{}, appErrors.ErrPayloadTooLarge
	}
	if !m.mimeAllowed(contentType) {
		return models.StagedPhoto{}, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unsupported photo type %s", contentType))
	}

	e := &entry{
		sessionID:   sessionID,
		photoID:     uuid.NewString(),
		token:       uuid.NewString(),
		filename:    safeName(filename),
		contentType: contentType,
		size:        size,
	}
	e.path = filepath.Join("photos", sessionID, e.photoID+extOf(e.filename))

	if _, err := m.store.SaveStream(e.path, io.LimitReader(r, m.cfg.MaxFileSizeBytes)); err != nil {
		return models.StagedPhoto{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage photo")
	}

	m.mu.Lock()
	m.byToken[e.token] = e
	m.byPhoto[e.photoID] = e
	if m.bySession[sessionID] == nil {
		m.bySession[sessionID] = make(map[string]*entry)
	}
	m.bySession[sessionID][e.photoID] = e
	m.mu.Unlock()

	return models.StagedPhoto{
		ID:         e.photoID,
		Filename:   e.filename,
		PreviewURL: path.Join(m.cfg.PreviewPrefix, e.token),
	}, nil
}

// ReleasePhoto drops one staged photo and its preview token. Releasing
// an already-released or unknown photo is a no-op.
func (m *Manager) ReleasePhoto(sessionID, photoID string) {
	m.mu.Lock()
	e := m.takeLocked(sessionID, photoID)
	m.mu.Unlock()
	m.deleteFile(e)
}

// ReleasePhotos drops a set of staged photos, e.g. when an equipment
// row is removed.
func (m *Manager) ReleasePhotos(sessionID string, photoIDs []string) {
	m.mu.Lock()
	entries := make([]*entry, 0, len(photoIDs))
	for _, id := range photoIDs {
		if e := m.takeLocked(sessionID, id); e != nil {
			entries = append(entries, e)
		}
	}
	m.mu.Unlock()
	for _, e := range entries {
		m.deleteFile(e)
	}
}

// ReleaseSession drops everything a session still holds. Called on
// teardown; photos already released individually are not touched again.
func (m *Manager) ReleaseSession(sessionID string) {
	m.mu.Lock()
	owned := m.bySession[sessionID]
	entries := make([]*entry, 0, len(owned))
	for id := range owned {
		if e := m.takeLocked(sessionID, id); e != nil {
			entries = append(entries, e)
		}
	}
	delete(m.bySession, sessionID)
	m.mu.Unlock()
	for _, e := range entries {
		m.deleteFile(e)
	}
}

// OpenPreview resolves a preview token to its staged file.
func (m *Manager) OpenPreview(token string) (*os.File, string, error) {
	m.mu.Lock()
	e, ok := m.byToken[token]
	m.mu.Unlock()
	if !ok {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "preview not found")
	}
	f, err := m.store.Open(e.path)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "preview not found")
	}
	return f, e.contentType, nil
}

// OpenPhoto resolves a staged photo for submission as multipart content.
func (m *Manager) OpenPhoto(sessionID, photoID string) (*os.File, error) {
	m.mu.Lock()
	e, ok := m.byPhoto[photoID]
	m.mu.Unlock()
	if !ok || e.sessionID != sessionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "staged photo not found")
	}
	f, err := m.store.Open(e.path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open staged photo")
	}
	return f, nil
}

// Count reports how many photos a session currently stages.
func (m *Manager) Count(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySession[sessionID])
}

// takeLocked removes the registry entry for (sessionID, photoID) and
// returns it, or nil when already gone. Callers hold m.mu.
func (m *Manager) takeLocked(sessionID, photoID string) *entry {
	e, ok := m.byPhoto[photoID]
	if !ok || e.sessionID != sessionID {
		return nil
	}
	delete(m.byPhoto, photoID)
	delete(m.byToken, e.token)
	if owned := m.bySession[sessionID]; owned != nil {
		delete(owned, photoID)
		if len(owned) == 0 {
			delete(m.bySession, sessionID)
		}
	}
	return e
}

func (m *Manager) deleteFile(e *entry) {
	if e == nil {
		return
	}
	if err := m.store.Delete(e.path); err != nil {
		// The staging sweeper reclaims anything left behind.
		m.logger.Warn("failed to delete staged photo",
			zap.String("session_id", e.sessionID),
			zap.String("path", e.path),
			zap.Error(err))
	}
}

func (m *Manager) mimeAllowed(contentType string) bool {
	if len(m.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range m.cfg.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

func safeName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "photo"
	}
	return name
}

func extOf(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 8 {
		return ""
	}
	return ext
}
