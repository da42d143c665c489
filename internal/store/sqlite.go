package store

import (
	"fmt"

	"github.com/fieldworkshq/surveysync/internal/survey"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// surveyRow is the relational projection of a Survey. The seq column keeps
// the collection's insertion order across save/load cycles.
type surveyRow struct {
	Seq             int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	SurveyID        string `gorm:"column:survey_id;size:190;uniqueIndex;not null"`
	Title           string `gorm:"column:title;not null"`
	CustomerName    string `gorm:"column:customer_name;not null"`
	CustomerAddress string `gorm:"column:customer_address;not null"`
	CustomerPhone   string `gorm:"column:customer_phone;not null;default:''"`
	CustomerEmail   string `gorm:"column:customer_email;not null;default:''"`
	Status          string `gorm:"column:status;size:32;not null"`
	Notes           string `gorm:"column:notes;type:text;not null;default:''"`
	CreatedDate     string `gorm:"column:created_date;not null"`
	LastUpdated     string `gorm:"column:last_updated;not null"`
}

func (surveyRow) TableName() string {
	return "surveys"
}

type fileRow struct {
	Seq         int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	FileID      string `gorm:"column:file_id;size:190;not null"`
	SurveyID    string `gorm:"column:survey_id;size:190;not null;index:idx_files_survey"`
	Name        string `gorm:"column:name;not null"`
	Size        int64  `gorm:"column:size;not null"`
	ContentType string `gorm:"column:content_type;not null;default:''"`
	UploadDate  string `gorm:"column:upload_date;not null"`
}

func (fileRow) TableName() string {
	return "survey_files"
}

// OpenSQLite establishes a SQLite connection and migrates the snapshot schema.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&surveyRow{}, &fileRow{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("snapshot database initialized", zap.String("path", path))
	}
	return db, nil
}

// SQLiteStore persists the snapshot in a SQLite database instead of a flat
// JSON file. Save still replaces the whole snapshot; it just does so inside
// a transaction.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore wraps an open database handle as a SnapshotStore.
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: database handle is required")
	}
	return &SQLiteStore{db: db}, nil
}

// Load reassembles the snapshot from the survey and file tables in
// insertion order.
func (s *SQLiteStore) Load() (survey.Snapshot, error) {
	snapshot := survey.EmptySnapshot()

	var surveyRows []surveyRow
	if err := s.db.Order("seq").Find(&surveyRows).Error; err != nil {
		return survey.Snapshot{}, fmt.Errorf("store: load surveys: %w", err)
	}
	for _, row := range surveyRows {
		snapshot.Surveys = append(snapshot.Surveys, survey.Survey{
			ID:              row.SurveyID,
			Title:           row.Title,
			CustomerName:    row.CustomerName,
			CustomerAddress: row.CustomerAddress,
			CustomerPhone:   row.CustomerPhone,
			CustomerEmail:   row.CustomerEmail,
			Status:          survey.Status(row.Status),
			Notes:           row.Notes,
			CreatedDate:     row.CreatedDate,
			LastUpdated:     row.LastUpdated,
		})
	}

	var fileRows []fileRow
	if err := s.db.Order("seq").Find(&fileRows).Error; err != nil {
		return survey.Snapshot{}, fmt.Errorf("store: load files: %w", err)
	}
	for _, row := range fileRows {
		snapshot.Files[row.SurveyID] = append(snapshot.Files[row.SurveyID], survey.FileMetadata{
			ID:         row.FileID,
			SurveyID:   row.SurveyID,
			Name:       row.Name,
			Size:       row.Size,
			Type:       row.ContentType,
			UploadDate: row.UploadDate,
		})
	}

	return snapshot, nil
}

// Save replaces the stored snapshot wholesale within one transaction.
func (s *SQLiteStore) Save(snapshot survey.Snapshot) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM surveys").Error; err != nil {
			return fmt.Errorf("store: clear surveys: %w", err)
		}
		if err := tx.Exec("DELETE FROM survey_files").Error; err != nil {
			return fmt.Errorf("store: clear files: %w", err)
		}

		for _, record := range snapshot.Surveys {
			row := surveyRow{
				SurveyID:        record.ID,
				Title:           record.Title,
				CustomerName:    record.CustomerName,
				CustomerAddress: record.CustomerAddress,
				CustomerPhone:   record.CustomerPhone,
				CustomerEmail:   record.CustomerEmail,
				Status:          record.Status.String(),
				Notes:           record.Notes,
				CreatedDate:     record.CreatedDate,
				LastUpdated:     record.LastUpdated,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("store: insert survey %s: %w", record.ID, err)
			}
		}

		for surveyID, list := range snapshot.Files {
			for _, file := range list {
				row := fileRow{
					FileID:      file.ID,
					SurveyID:    surveyID,
					Name:        file.Name,
					Size:        file.Size,
					ContentType: file.Type,
					UploadDate:  file.UploadDate,
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("store: insert file %s: %w", file.ID, err)
				}
			}
		}
		return nil
	})
}
