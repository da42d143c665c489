package store

import (
	"errors"
	"sync"
	"time"

	"github.com/fieldworkshq/surveysync/internal/metrics"
	"github.com/fieldworkshq/surveysync/internal/survey"
	"go.uber.org/zap"
)

var errMissingBackend = errors.New("store: snapshot backend is required")

// Config describes the dependencies of the state store.
type Config struct {
	Backend SnapshotStore
	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// StateStore holds the authoritative in-memory snapshot. It is the sole
// writer of durable state: every mutation is mirrored to the backend before
// the call returns. Mutation methods report whether they applied; commands
// targeting unknown identifiers are silent no-ops.
type StateStore struct {
	backend SnapshotStore
	clock   func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	snapshot survey.Snapshot
}

// New constructs a state store around the given snapshot backend.
func New(cfg Config) (*StateStore, error) {
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStore{
		backend:  cfg.Backend,
		clock:    clock,
		logger:   logger,
		metrics:  cfg.Metrics,
		snapshot: survey.EmptySnapshot(),
	}, nil
}

// Load initializes the in-memory snapshot from the backend. A backend error
// is recoverable: the store logs it and starts from an empty collection.
func (s *StateStore) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, err := s.backend.Load()
	if err != nil {
		s.logger.Warn("snapshot load failed, starting empty", zap.Error(err))
		s.snapshot = survey.EmptySnapshot()
		return
	}
	snapshot.Normalize()
	s.snapshot = snapshot
	s.logger.Info("snapshot loaded",
		zap.Int("surveys", len(snapshot.Surveys)),
		zap.Int("file_lists", len(snapshot.Files)))
}

// Snapshot returns a deep copy of the current collection state.
func (s *StateStore) Snapshot() survey.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// AddSurvey appends a survey to the collection. The identifier is the
// client's to choose; an identifier already in use makes the command a
// no-op, keeping the one-survey-per-identifier invariant.
func (s *StateStore) AddSurvey(record survey.Survey) (survey.Survey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findSurvey(record.ID) != -1 {
		return survey.Survey{}, false
	}
	s.snapshot.Surveys = append(s.snapshot.Surveys, record)
	s.persist()
	return record, true
}

// UpdateSurvey replaces every field of an existing survey except the
// identifier and creation date. Unknown identifiers are a no-op.
func (s *StateStore) UpdateSurvey(record survey.Survey) (survey.Survey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.findSurvey(record.ID)
	if index == -1 {
		return survey.Survey{}, false
	}
	record.CreatedDate = s.snapshot.Surveys[index].CreatedDate
	s.snapshot.Surveys[index] = record
	s.persist()
	return record, true
}

// ChangeStatus updates only the status and last-updated timestamp of an
// existing survey. Unknown identifiers are a no-op.
func (s *StateStore) ChangeStatus(surveyID string, status survey.Status) (survey.Survey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.findSurvey(surveyID)
	if index == -1 {
		return survey.Survey{}, false
	}
	s.snapshot.Surveys[index].Status = status
	s.snapshot.Surveys[index].LastUpdated = s.clock().UTC().Format(time.RFC3339)
	s.persist()
	return s.snapshot.Surveys[index], true
}

// DeleteSurvey removes a survey and cascades its entire file list. Unknown
// identifiers are a no-op.
func (s *StateStore) DeleteSurvey(surveyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.findSurvey(surveyID)
	if index == -1 {
		return false
	}
	s.snapshot.Surveys = append(s.snapshot.Surveys[:index], s.snapshot.Surveys[index+1:]...)
	delete(s.snapshot.Files, surveyID)
	s.persist()
	return true
}

// AddFile appends file metadata to the owning survey's list, creating the
// list if absent. The owning survey is not required to exist; the relay has
// always trusted clients on this and reconciles nothing.
func (s *StateStore) AddFile(file survey.FileMetadata) survey.FileMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Files[file.SurveyID] = append(s.snapshot.Files[file.SurveyID], file)
	s.persist()
	return file
}

// DeleteFile removes one file by identifier from the owning survey's list.
// A missing list or missing file is a no-op.
func (s *StateStore) DeleteFile(surveyID, fileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.snapshot.Files[surveyID]
	if !ok {
		return false
	}
	for i, file := range list {
		if file.ID == fileID {
			s.snapshot.Files[surveyID] = append(list[:i], list[i+1:]...)
			s.persist()
			return true
		}
	}
	return false
}

// ReplaceSurveys overwrites the entire survey sequence.
func (s *StateStore) ReplaceSurveys(surveys []survey.Survey) []survey.Survey {
	s.mu.Lock()
	defer s.mu.Unlock()
	if surveys == nil {
		surveys = []survey.Survey{}
	}
	replacement := make([]survey.Survey, len(surveys))
	copy(replacement, surveys)
	s.snapshot.Surveys = replacement
	s.persist()
	return replacement
}

// ReplaceFiles overwrites the entire file-metadata mapping.
func (s *StateStore) ReplaceFiles(files map[string][]survey.FileMetadata) map[string][]survey.FileMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	replacement := make(map[string][]survey.FileMetadata, len(files))
	for surveyID, list := range files {
		copied := make([]survey.FileMetadata, len(list))
		copy(copied, list)
		replacement[surveyID] = copied
	}
	s.snapshot.Files = replacement
	s.persist()
	return replacement
}

func (s *StateStore) findSurvey(surveyID string) int {
	for i, record := range s.snapshot.Surveys {
		if record.ID == surveyID {
			return i
		}
	}
	return -1
}

// persist mirrors the in-memory snapshot to the backend. Failures are
// logged and counted; the in-memory state stays authoritative for the
// running process, so the change is only at risk across a restart.
func (s *StateStore) persist() {
	if err := s.backend.Save(s.snapshot.Clone()); err != nil {
		s.logger.Error("snapshot persist failed", zap.Error(err))
		s.metrics.PersistFailure()
	}
}
