package client

import (
	"strings"
	"sync"
	"time"

	"github.com/fieldworkshq/surveysync/internal/relay"
	"github.com/fieldworkshq/surveysync/internal/survey"
	"go.uber.org/zap"
)

// FilterAll is the status filter value that matches every survey.
const FilterAll = "all"

// Stats are the aggregate counts shown on the dashboard.
type Stats struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Cancelled  int
}

// Session is a client's local cache of the shared collection. It is
// updated exclusively from the event stream: the initial event replaces
// the cache wholesale, incremental events apply the same patch the relay
// applied to its store.
type Session struct {
	mu       sync.RWMutex
	surveys  []survey.Survey
	files    map[string][]survey.FileMetadata
	logger   *zap.Logger
	observer func(relay.Event)
}

// NewSession constructs an empty session cache.
func NewSession(logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		surveys: []survey.Survey{},
		files:   map[string][]survey.FileMetadata{},
		logger:  logger,
	}
}

// Apply folds one event into the cache.
func (s *Session) Apply(event relay.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case relay.EventInitial:
		if event.Data == nil {
			s.logger.Warn("initial event without snapshot dropped")
			return
		}
		snapshot := event.Data.Clone()
		snapshot.Normalize()
		s.surveys = snapshot.Surveys
		s.files = snapshot.Files
	case relay.EventSurveyAdded:
		if event.Survey == nil {
			return
		}
		s.surveys = append(s.surveys, *event.Survey)
	case relay.EventSurveyUpdated:
		if event.Survey == nil {
			return
		}
		for i, record := range s.surveys {
			if record.ID == event.Survey.ID {
				s.surveys[i] = *event.Survey
				return
			}
		}
	case relay.EventSurveyDeleted:
		for i, record := range s.surveys {
			if record.ID == event.SurveyID {
				s.surveys = append(s.surveys[:i], s.surveys[i+1:]...)
				break
			}
		}
		delete(s.files, event.SurveyID)
	case relay.EventFileAdded:
		if event.File == nil {
			return
		}
		s.files[event.File.SurveyID] = append(s.files[event.File.SurveyID], *event.File)
	case relay.EventFileDeleted:
		list := s.files[event.SurveyID]
		for i, file := range list {
			if file.ID == event.FileID {
				s.files[event.SurveyID] = append(list[:i], list[i+1:]...)
				return
			}
		}
	case relay.EventSurveysUpdated:
		replacement := make([]survey.Survey, len(event.Surveys))
		copy(replacement, event.Surveys)
		s.surveys = replacement
	case relay.EventFilesUpdated:
		replacement := make(map[string][]survey.FileMetadata, len(event.Files))
		for surveyID, list := range event.Files {
			copied := make([]survey.FileMetadata, len(list))
			copy(copied, list)
			replacement[surveyID] = copied
		}
		s.files = replacement
	default:
		s.logger.Warn("unknown event type dropped", zap.String("type", event.Type))
	}
}

// Observe registers a callback invoked after each event applied by Run.
// Set it before Run starts; it is read without synchronization.
func (s *Session) Observe(callback func(relay.Event)) {
	s.observer = callback
}

// Run consumes a transport's event stream until it closes or ctx ends.
func (s *Session) Run(events <-chan relay.Event, done <-chan struct{}) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			s.Apply(event)
			if s.observer != nil {
				s.observer(event)
			}
		case <-done:
			return
		}
	}
}

// Surveys returns a copy of the cached survey sequence.
func (s *Session) Surveys() []survey.Survey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]survey.Survey, len(s.surveys))
	copy(copied, s.surveys)
	return copied
}

// Files returns a copy of the cached file list for one survey.
func (s *Session) Files(surveyID string) []survey.FileMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.files[surveyID]
	copied := make([]survey.FileMetadata, len(list))
	copy(copied, list)
	return copied
}

// Stats computes the aggregate counts over the cached surveys.
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{Total: len(s.surveys)}
	for _, record := range s.surveys {
		switch record.Status {
		case survey.StatusPending:
			stats.Pending++
		case survey.StatusInProgress:
			stats.InProgress++
		case survey.StatusCompleted:
			stats.Completed++
		case survey.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Filter returns the cached surveys matching a status filter and a
// free-text query over title, customer name and address.
func (s *Session) Filter(statusFilter string, query string) []survey.Survey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	matched := make([]survey.Survey, 0, len(s.surveys))
	for _, record := range s.surveys {
		if statusFilter != FilterAll && record.Status.String() != statusFilter {
			continue
		}
		if query != "" && !matchesQuery(record, query) {
			continue
		}
		matched = append(matched, record)
	}
	return matched
}

func matchesQuery(record survey.Survey, query string) bool {
	return strings.Contains(strings.ToLower(record.Title), query) ||
		strings.Contains(strings.ToLower(record.CustomerName), query) ||
		strings.Contains(strings.ToLower(record.CustomerAddress), query)
}

// NewSurveyRecord assembles a survey with a fresh identifier and creation
// timestamps. Identifier generation belongs to the client; the relay
// accepts whatever opaque string was chosen.
func NewSurveyRecord(ids survey.IDProvider, clock func() time.Time, record survey.Survey) (survey.Survey, error) {
	id, err := ids.NewID()
	if err != nil {
		return survey.Survey{}, err
	}
	now := clock().UTC().Format(time.RFC3339)
	record.ID = id
	record.CreatedDate = now
	record.LastUpdated = now
	if record.Status == "" {
		record.Status = survey.StatusPending
	}
	return record, nil
}
