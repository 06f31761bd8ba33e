package domain

// SessionState represents user's current interaction state
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateSearching SessionState = "searching"
)

// Session holds a user's conversational state and catalog snapshots.
// Only the dispatcher mutates it.
type Session struct {
	State        SessionState
	SearchTarget ListKind
	Catalog      map[ListKind][]Service
}

// NewSession returns an idle session with no cached lists
func NewSession() *Session {
	return &Session{
		State:   StateIdle,
		Catalog: make(map[ListKind][]Service),
	}
}

// Reset returns the session to the root-menu state
func (s *Session) Reset() {
	s.State = StateIdle
	s.SearchTarget = ""
	s.Catalog = make(map[ListKind][]Service)
}

// BeginSearch enters SEARCHING against the given list
func (s *Session) BeginSearch(kind ListKind) {
	s.State = StateSearching
	s.SearchTarget = kind
}

// EndSearch returns to IDLE after a search attempt
func (s *Session) EndSearch() {
	s.State = StateIdle
	s.SearchTarget = ""
}

// List returns the cached list and whether it exists
func (s *Session) List(kind ListKind) ([]Service, bool) {
	list, ok := s.Catalog[kind]
	return list, ok
}

// StoreList replaces the cached list for kind
func (s *Session) StoreList(kind ListKind, list []Service) {
	if s.Catalog == nil {
		s.Catalog = make(map[ListKind][]Service)
	}
	if list == nil {
		list = []Service{}
	}
	s.Catalog[kind] = list
}

// FindService looks a service up across all cached lists
func (s *Session) FindService(id string) (Service, bool) {
	for _, kind := range []ListKind{ListFiltered, ListRegular, ListSpecial} {
		for _, svc := range s.Catalog[kind] {
			if svc.ID == id {
				return svc, true
			}
		}
	}
	return Service{}, false
}
