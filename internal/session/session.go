package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mnemohq/mnemo-mcp/internal/store"
)

type State string

const (
	StateResults   State = "RESULTS"
	StateClustered State = "CLUSTERED"
	StatePreview   State = "PREVIEW"
	StateExit      State = "EXIT"
)

const (
	MinPageSize     = 1
	MaxPageSize     = 20
	DefaultPageSize = 5
)

// Session is one user's in-progress result browsing state. Every action
// validates against the current state and result bounds; invalid actions
// are no-ops with an explanatory message, never failures.
type Session struct {
	ID               string                       `json:"id"`
	Query            string                       `json:"query"`
	Results          []store.SearchHit            `json:"results"`
	Filters          map[string]string            `json:"filters"`
	Page             int                          `json:"page"`
	PageSize         int                          `json:"page_size"`
	State            State                        `json:"state"`
	ClusteredResults map[string][]store.SearchHit `json:"clustered_results,omitempty"`
	SelectedResult   *store.SearchHit             `json:"selected_result,omitempty"`
	CreatedAt        time.Time                    `json:"created_at"`
}

func New(id, query string, results []store.SearchHit, pageSize int) (*Session, error) {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return nil, &store.ValidationError{
			Field:   "pageSize",
			Message: fmt.Sprintf("must be between %d and %d", MinPageSize, MaxPageSize),
		}
	}
	return &Session{
		ID:        id,
		Query:     query,
		Results:   results,
		Filters:   map[string]string{},
		Page:      1,
		PageSize:  pageSize,
		State:     StateResults,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// FilteredResults applies the active filters to the original result set.
// The originals are never discarded; clearing filters restores them.
func (s *Session) FilteredResults() []store.SearchHit {
	if len(s.Filters) == 0 {
		return s.Results
	}

	filtered := make([]store.SearchHit, 0, len(s.Results))
	for _, hit := range s.Results {
		if s.matches(hit) {
			filtered = append(filtered, hit)
		}
	}
	return filtered
}

func (s *Session) matches(hit store.SearchHit) bool {
	for kind, value := range s.Filters {
		switch kind {
		case "folder":
			if hit.SpecFolder != value {
				return false
			}
		case "phrase":
			found := false
			needle := strings.ToLower(value)
			for _, p := range hit.TriggerPhrases {
				if strings.Contains(strings.ToLower(p), needle) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "after":
			cutoff, err := time.Parse("2006-01-02", value)
			if err != nil || hit.CreatedAt.Before(cutoff) {
				return false
			}
		}
	}
	return true
}

// TotalPages is at least 1 even for an empty filtered set.
func (s *Session) TotalPages() int {
	count := len(s.FilteredResults())
	if count == 0 {
		return 1
	}
	pages := (count + s.PageSize - 1) / s.PageSize
	return pages
}

// PageHits returns the slice of filtered results on the current page.
func (s *Session) PageHits() []store.SearchHit {
	filtered := s.FilteredResults()
	start := (s.Page - 1) * s.PageSize
	if start >= len(filtered) {
		return nil
	}
	end := start + s.PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end]
}

func (s *Session) clampPage() {
	total := s.TotalPages()
	if s.Page > total {
		s.Page = total
	}
	if s.Page < 1 {
		s.Page = 1
	}
}

// Next advances the page, clamped to the last page.
func (s *Session) Next() (string, bool) {
	if s.State == StateExit {
		return "session has ended", false
	}
	total := s.TotalPages()
	if s.Page >= total {
		s.Page = total
		return fmt.Sprintf("already on last page (%d)", total), false
	}
	s.Page++
	return "", true
}

// Prev retreats the page, clamped to page 1.
func (s *Session) Prev() (string, bool) {
	if s.State == StateExit {
		return "session has ended", false
	}
	if s.Page <= 1 {
		s.Page = 1
		return "already on first page", false
	}
	s.Page--
	return "", true
}

// Cluster groups the current filtered results by spec folder.
func (s *Session) Cluster() (string, bool) {
	if s.State != StateResults {
		return fmt.Sprintf("cannot cluster from %s view", s.State), false
	}

	clusters := make(map[string][]store.SearchHit)
	for _, hit := range s.FilteredResults() {
		clusters[hit.SpecFolder] = append(clusters[hit.SpecFolder], hit)
	}
	s.ClusteredResults = clusters
	s.State = StateClustered
	return "", true
}

// Uncluster returns to the flat paginated view, keeping filters.
func (s *Session) Uncluster() (string, bool) {
	if s.State != StateClustered {
		return fmt.Sprintf("cannot uncluster from %s view", s.State), false
	}
	s.ClusteredResults = nil
	s.State = StateResults
	return "", true
}

// View selects result n (1-indexed within the current page) for preview.
func (s *Session) View(n int) (string, bool) {
	if s.State != StateResults {
		return fmt.Sprintf("cannot preview from %s view", s.State), false
	}
	page := s.PageHits()
	if n < 1 || n > len(page) {
		return fmt.Sprintf("no result %d on this page (1-%d)", n, len(page)), false
	}
	selected := page[n-1]
	s.SelectedResult = &selected
	s.State = StatePreview
	return "", true
}

// Back leaves the preview and returns to the prior paginated view.
func (s *Session) Back() (string, bool) {
	if s.State != StatePreview {
		return fmt.Sprintf("cannot go back from %s view", s.State), false
	}
	s.SelectedResult = nil
	s.State = StateResults
	return "", true
}

// Filter narrows the visible results without discarding the originals.
func (s *Session) Filter(kind, value string) (string, bool) {
	if s.State == StateExit {
		return "session has ended", false
	}
	switch kind {
	case "folder", "phrase", "after":
	default:
		return fmt.Sprintf("unknown filter kind %q (folder, phrase, after)", kind), false
	}

	s.Filters[kind] = value
	s.clampPage()
	if s.State == StateClustered {
		s.reclusterLocked()
	}
	return "", true
}

// ClearFilters removes all filters, restoring the full result set.
func (s *Session) ClearFilters() (string, bool) {
	if s.State == StateExit {
		return "session has ended", false
	}
	s.Filters = map[string]string{}
	s.clampPage()
	if s.State == StateClustered {
		s.reclusterLocked()
	}
	return "", true
}

func (s *Session) reclusterLocked() {
	clusters := make(map[string][]store.SearchHit)
	for _, hit := range s.FilteredResults() {
		clusters[hit.SpecFolder] = append(clusters[hit.SpecFolder], hit)
	}
	s.ClusteredResults = clusters
}

// Quit moves the session to its terminal state.
func (s *Session) Quit() (string, bool) {
	if s.State == StateExit {
		return "session has already ended", false
	}
	s.State = StateExit
	s.SelectedResult = nil
	return "", true
}

// ClusterFolders returns cluster keys in a stable order for rendering.
func (s *Session) ClusterFolders() []string {
	folders := make([]string, 0, len(s.ClusteredResults))
	for folder := range s.ClusteredResults {
		folders = append(folders, folder)
	}
	sort.Strings(folders)
	return folders
}
