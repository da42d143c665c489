package relay

import (
	"github.com/fieldworkshq/surveysync/internal/survey"
)

// Client→server command types.
const (
	CommandAddSurvey     = "add_survey"
	CommandUpdateSurvey  = "update_survey"
	CommandChangeStatus  = "change_status"
	CommandDeleteSurvey  = "delete_survey"
	CommandAddFile       = "add_file"
	CommandDeleteFile    = "delete_file"
	CommandUpdateSurveys = "update_surveys"
	CommandUpdateFiles   = "update_files"
)

// Server→client event types.
const (
	EventInitial        = "initial"
	EventSurveyAdded    = "survey_added"
	EventSurveyUpdated  = "survey_updated"
	EventSurveyDeleted  = "survey_deleted"
	EventFileAdded      = "file_added"
	EventFileDeleted    = "file_deleted"
	EventSurveysUpdated = "surveys_updated"
	EventFilesUpdated   = "files_updated"
)

// Command is the client→server mutation envelope. The type tag selects the
// command; only the fields that command carries are populated.
type Command struct {
	Type     string                           `json:"type"`
	Survey   *survey.Survey                   `json:"survey,omitempty"`
	Surveys  []survey.Survey                  `json:"surveys,omitempty"`
	File     *survey.FileMetadata             `json:"file,omitempty"`
	Files    map[string][]survey.FileMetadata `json:"files,omitempty"`
	SurveyID string                           `json:"surveyId,omitempty"`
	FileID   string                           `json:"fileId,omitempty"`
	Status   survey.Status                    `json:"status,omitempty"`
}

// Event is the server→client change notification. Incremental events carry
// exactly the entity or identifier affected; only the initial event after a
// handshake carries a full snapshot.
type Event struct {
	Type     string                           `json:"type"`
	Data     *survey.Snapshot                 `json:"data,omitempty"`
	Survey   *survey.Survey                   `json:"survey,omitempty"`
	Surveys  []survey.Survey                  `json:"surveys,omitempty"`
	File     *survey.FileMetadata             `json:"file,omitempty"`
	Files    map[string][]survey.FileMetadata `json:"files,omitempty"`
	SurveyID string                           `json:"surveyId,omitempty"`
	FileID   string                           `json:"fileId,omitempty"`
}

// InitialEvent wraps a snapshot in the handshake event.
func InitialEvent(snapshot survey.Snapshot) Event {
	return Event{Type: EventInitial, Data: &snapshot}
}
