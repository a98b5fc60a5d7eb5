package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FallbackAllocator mints inward serials locally when the numbering
// service is unreachable. Reservations live in memory only; the counter
// on disk advances when a reservation's commit fires, which callers tie
// to the first successful persist of the form. A session abandoned
// before anything was saved therefore never burns a number.
type FallbackAllocator struct {
	mu        sync.Mutex
	path      string
	loaded    bool
	year      int
	committed int
	reserved  int
}

type serialState struct {
	Year    int `json:"year"`
	Counter int `json:"counter"`
}

// NewFallbackAllocator persists its counter at path.
func NewFallbackAllocator(path string) *FallbackAllocator {
	return &FallbackAllocator{path: path}
}

// Reserve hands out the next serial for now's year together with the
// commit that burns it. Concurrent reservations never collide because
// the in-memory high-water mark advances immediately.
func (a *FallbackAllocator) Reserve(now time.Time) (string, func() error, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.loadLocked(); err != nil {
		return "", nil, err
	}
	yy := now.Year() % 100
	if a.year != yy {
		a.year = yy
		a.committed = 0
		a.reserved = 0
	}
	if a.reserved < a.committed {
		a.reserved = a.committed
	}
	a.reserved++
	n := a.reserved

	serial := fmt.Sprintf("INW-%02d-%04d", yy, n)
	commit := func() error { return a.commit(yy, n) }
	return serial, commit, nil
}

func (a *FallbackAllocator) commit(year, n int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if year != a.year || n <= a.committed {
		return nil
	}
	a.committed = n
	return a.writeLocked()
}

func (a *FallbackAllocator) loadLocked() error {
	if a.loaded {
		return nil
	}
	data, err := os.ReadFile(a.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return err
	default:
		var st serialState
		// A corrupt state file restarts the counter rather than taking
		// intake down with it; the numbering service is already gone
		// when this allocator runs.
		if jsonErr := json.Unmarshal(data, &st); jsonErr == nil {
			a.year = st.Year
			a.committed = st.Counter
		}
	}
	a.loaded = true
	return nil
}

func (a *FallbackAllocator) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(serialState{Year: a.year, Counter: a.committed})
	if err != nil {
		return err
	}
	return os.WriteFile(a.path, data, 0o644)
}
