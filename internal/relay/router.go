package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fieldworkshq/surveysync/internal/metrics"
	"github.com/fieldworkshq/surveysync/internal/store"
	"github.com/fieldworkshq/surveysync/internal/survey"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("relay: state store is required")
	errMissingHub   = errors.New("relay: broadcast hub is required")
)

// RouterConfig describes the dependencies of the mutation router.
type RouterConfig struct {
	Store   *store.StateStore
	Hub     *Hub
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Router validates and applies mutation commands against the state store,
// then broadcasts the resulting change event through the hub. A single
// mutex serializes validate → apply → persist → broadcast, so mutations
// have a total order regardless of which session or HTTP handler submitted
// them. Identifiers are accepted as opaque strings; the router never
// generates or regenerates them.
type Router struct {
	mu      sync.Mutex
	store   *store.StateStore
	hub     *Hub
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRouter constructs a mutation router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Hub == nil {
		return nil, errMissingHub
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		store:   cfg.Store,
		hub:     cfg.Hub,
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Subscribe registers a session with the hub and captures the snapshot for
// its initial event in one step, under the mutation mutex. No mutation can
// slip between the snapshot and the registration, so the stream carries
// exactly the events that post-date the snapshot.
func (r *Router) Subscribe(ctx context.Context) (survey.Snapshot, <-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stream, cleanup := r.hub.Register(ctx)
	return r.store.Snapshot(), stream, cleanup
}

// Dispatch decodes and applies one raw client message. Malformed envelopes
// and unknown command types are logged and dropped; the connection that
// sent them stays open.
func (r *Router) Dispatch(raw []byte) {
	var command Command
	if err := json.Unmarshal(raw, &command); err != nil {
		r.logger.Warn("malformed message dropped", zap.Error(err))
		return
	}

	switch command.Type {
	case CommandAddSurvey:
		if command.Survey == nil {
			r.logger.Warn("add_survey without survey payload dropped")
			return
		}
		r.AddSurvey(*command.Survey)
	case CommandUpdateSurvey:
		if command.Survey == nil {
			r.logger.Warn("update_survey without survey payload dropped")
			return
		}
		r.UpdateSurvey(*command.Survey)
	case CommandChangeStatus:
		status, err := survey.ParseStatus(command.Status.String())
		if err != nil {
			r.logger.Warn("change_status with unknown status dropped",
				zap.String("status", command.Status.String()))
			return
		}
		r.ChangeStatus(command.SurveyID, status)
	case CommandDeleteSurvey:
		r.DeleteSurvey(command.SurveyID)
	case CommandAddFile:
		if command.File == nil {
			r.logger.Warn("add_file without file payload dropped")
			return
		}
		r.AddFile(*command.File)
	case CommandDeleteFile:
		r.DeleteFile(command.SurveyID, command.FileID)
	case CommandUpdateSurveys:
		r.ReplaceSurveys(command.Surveys)
	case CommandUpdateFiles:
		r.ReplaceFiles(command.Files)
	default:
		r.logger.Warn("unknown command type dropped", zap.String("type", command.Type))
	}
}

// AddSurvey appends a survey and broadcasts survey_added. A duplicate
// identifier makes it a no-op with no broadcast.
func (r *Router) AddSurvey(record survey.Survey) (survey.Survey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added, applied := r.store.AddSurvey(record)
	if !applied {
		r.logger.Debug("add_survey ignored, identifier in use", zap.String("survey_id", record.ID))
		return survey.Survey{}, false
	}
	r.metrics.MutationApplied(CommandAddSurvey)
	r.hub.Publish(Event{Type: EventSurveyAdded, Survey: &added})
	return added, true
}

// UpdateSurvey replaces an existing survey's fields and broadcasts
// survey_updated; unknown identifiers are a silent no-op.
func (r *Router) UpdateSurvey(record survey.Survey) (survey.Survey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated, applied := r.store.UpdateSurvey(record)
	if !applied {
		return survey.Survey{}, false
	}
	r.metrics.MutationApplied(CommandUpdateSurvey)
	r.hub.Publish(Event{Type: EventSurveyUpdated, Survey: &updated})
	return updated, true
}

// ChangeStatus applies a status-only update and broadcasts survey_updated.
func (r *Router) ChangeStatus(surveyID string, status survey.Status) (survey.Survey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated, applied := r.store.ChangeStatus(surveyID, status)
	if !applied {
		return survey.Survey{}, false
	}
	r.metrics.MutationApplied(CommandChangeStatus)
	r.hub.Publish(Event{Type: EventSurveyUpdated, Survey: &updated})
	return updated, true
}

// DeleteSurvey removes a survey (cascading its file list) and broadcasts
// survey_deleted with the identifier.
func (r *Router) DeleteSurvey(surveyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.store.DeleteSurvey(surveyID) {
		return false
	}
	r.metrics.MutationApplied(CommandDeleteSurvey)
	r.hub.Publish(Event{Type: EventSurveyDeleted, SurveyID: surveyID})
	return true
}

// AddFile appends file metadata and broadcasts file_added. The owning
// survey is not checked for existence.
func (r *Router) AddFile(file survey.FileMetadata) survey.FileMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := r.store.AddFile(file)
	r.metrics.MutationApplied(CommandAddFile)
	r.hub.Publish(Event{Type: EventFileAdded, File: &added})
	return added
}

// DeleteFile removes one file and broadcasts file_deleted with the
// (surveyId, fileId) pair; a missing file is a silent no-op.
func (r *Router) DeleteFile(surveyID, fileID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.store.DeleteFile(surveyID, fileID) {
		return false
	}
	r.metrics.MutationApplied(CommandDeleteFile)
	r.hub.Publish(Event{Type: EventFileDeleted, SurveyID: surveyID, FileID: fileID})
	return true
}

// ReplaceSurveys overwrites the survey sequence and broadcasts the full
// replacement.
func (r *Router) ReplaceSurveys(surveys []survey.Survey) []survey.Survey {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := r.store.ReplaceSurveys(surveys)
	r.metrics.MutationApplied(CommandUpdateSurveys)
	r.hub.Publish(Event{Type: EventSurveysUpdated, Surveys: replaced})
	return replaced
}

// ReplaceFiles overwrites the file mapping and broadcasts the full
// replacement.
func (r *Router) ReplaceFiles(files map[string][]survey.FileMetadata) map[string][]survey.FileMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := r.store.ReplaceFiles(files)
	r.metrics.MutationApplied(CommandUpdateFiles)
	r.hub.Publish(Event{Type: EventFilesUpdated, Files: replaced})
	return replaced
}
