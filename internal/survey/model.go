package survey

import (
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the lifecycle states of a survey job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ErrInvalidStatus indicates a status value outside the known set.
var ErrInvalidStatus = errors.New("survey: invalid status")

// ParseStatus validates raw input and returns a Status.
func ParseStatus(rawInput string) (Status, error) {
	switch Status(strings.TrimSpace(rawInput)) {
	case StatusPending:
		return StatusPending, nil
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, rawInput)
	}
}

// Next returns the state a survey advances to when the operator moves it
// forward: pending → in-progress → completed. Completed surveys stay
// completed; cancelled surveys re-enter the flow at pending.
func (s Status) Next() Status {
	switch s {
	case StatusPending:
		return StatusInProgress
	case StatusInProgress:
		return StatusCompleted
	case StatusCompleted:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// String returns the wire representation of the status.
func (s Status) String() string {
	return string(s)
}

// Survey is one tracked customer energy-assessment job. The identifier is
// client-generated, opaque, and immutable once assigned; timestamps are
// RFC 3339 strings supplied by the submitting client.
type Survey struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	CustomerName    string `json:"customerName"`
	CustomerAddress string `json:"customerAddress"`
	CustomerPhone   string `json:"customerPhone,omitempty"`
	CustomerEmail   string `json:"customerEmail,omitempty"`
	Status          Status `json:"status"`
	Notes           string `json:"notes,omitempty"`
	CreatedDate     string `json:"createdDate"`
	LastUpdated     string `json:"lastUpdated"`
}

// FileMetadata describes an uploaded file attached to a survey. Only the
// metadata is tracked; file content is never stored.
type FileMetadata struct {
	ID         string `json:"id"`
	SurveyID   string `json:"surveyId"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Type       string `json:"type,omitempty"`
	UploadDate string `json:"uploadDate"`
}

// Snapshot is the full collection state: the ordered survey sequence plus
// the per-survey file lists. It is the unit of persistence and of
// initial-sync transfer.
type Snapshot struct {
	Surveys []Survey                  `json:"surveys"`
	Files   map[string][]FileMetadata `json:"files"`
}

// EmptySnapshot returns a snapshot with allocated, empty collections so the
// wire encoding is always {"surveys":[],"files":{}} rather than nulls.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Surveys: []Survey{},
		Files:   map[string][]FileMetadata{},
	}
}

// Clone returns a deep copy of the snapshot. Callers receiving a clone may
// mutate it freely without aliasing the source.
func (s Snapshot) Clone() Snapshot {
	clone := Snapshot{
		Surveys: make([]Survey, len(s.Surveys)),
		Files:   make(map[string][]FileMetadata, len(s.Files)),
	}
	copy(clone.Surveys, s.Surveys)
	for surveyID, list := range s.Files {
		files := make([]FileMetadata, len(list))
		copy(files, list)
		clone.Files[surveyID] = files
	}
	return clone
}

// Normalize allocates any nil collections in place. Snapshots decoded from
// JSON may carry nil slices or maps; the store requires allocated ones.
func (s *Snapshot) Normalize() {
	if s.Surveys == nil {
		s.Surveys = []Survey{}
	}
	if s.Files == nil {
		s.Files = map[string][]FileMetadata{}
	}
}
