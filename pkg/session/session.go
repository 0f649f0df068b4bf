// Package session holds per-session state: the cached result list of the
// latest search and the include/exclude selection keyed by observation id.
// Nothing here is a process-wide singleton; the server hands each browser
// session its own instance.
package session

import (
	"sync"

	"github.com/mycosphaera/fungarium/pkg/observation"
)

// Selection maps observation id to "include in import". Stale keys from a
// replaced search are tolerated, not purged; every count or read is
// restricted to the current result ids.
type Selection map[int64]bool

// Session owns the canonical fetched result list and its selection.
type Session struct {
	Results   []observation.Raw
	Total     int
	Selection Selection
}

func New() *Session {
	return &Session{Selection: Selection{}}
}

// SetResults replaces the result list after a new search and marks every
// fetched record as selected. Only an explicit new search ever resets the
// selection.
func (s *Session) SetResults(recs []observation.Raw, total int) {
	s.Results = recs
	s.Total = total
	s.Selection = Selection{}
	for _, r := range recs {
		s.Selection[r.ID] = true
	}
}

// SetMany bulk-sets the given ids. Callers scope this to the currently
// visible subset; it must never be handed the full result set when a view
// filter is active.
func (s *Session) SetMany(ids []int64, value bool) {
	for _, id := range ids {
		s.Selection[id] = value
	}
}

// Toggle updates a single record's selection.
func (s *Session) Toggle(id int64, value bool) {
	s.Selection[id] = value
}

// CountSelected counts selected entries among the given current result ids,
// ignoring stale keys left behind by earlier searches.
func (s *Session) CountSelected(currentIDs []int64) int {
	n := 0
	for _, id := range currentIDs {
		if s.Selection[id] {
			n++
		}
	}
	return n
}

// ResultIDs lists the ids of the cached result list, in order.
func (s *Session) ResultIDs() []int64 {
	ids := make([]int64, 0, len(s.Results))
	for _, r := range s.Results {
		ids = append(ids, r.ID)
	}
	return ids
}

// SelectedResults returns the cached records currently marked for import,
// preserving result order.
func (s *Session) SelectedResults() []observation.Raw {
	var out []observation.Raw
	for _, r := range s.Results {
		if s.Selection[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

// Manager hands out per-session state for the server. The pipeline itself is
// single-threaded per session; the lock only guards the session table against
// concurrent browsers.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Get returns the session for the given id, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = New()
		m.sessions[id] = s
	}
	return s
}

// Reset drops a session entirely (explicit "reset search").
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
