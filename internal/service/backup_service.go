package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"studydash/internal/database"
	"studydash/internal/models"
	"studydash/internal/repository"
)

// BackupVersion is written into every export
const BackupVersion = "1.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version      string                  `json:"version"`
	ExportedAt   time.Time               `json:"exported_at"`
	DatabaseType string                  `json:"database_type"`
	Users        []UserBackup            `json:"users"`
	Studies      []StudyBackup           `json:"studies"`
	Memberships  []models.Membership     `json:"memberships"`
	Responses    []models.SurveyResponse `json:"responses"`
}

// UserBackup represents a user record for backup, including its hash
type UserBackup struct {
	ID           int64       `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"password_hash"`
	Role         models.Role `json:"role"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// StudyBackup is a study with its catalog
type StudyBackup struct {
	models.Study
	Modules   []models.Module   `json:"modules"`
	Questions []models.Question `json:"questions"`
}

// backupTables lists tables children first, the order they are cleared in
var backupTables = []string{"responses", "questions", "modules", "user_studies", "studies", "users"}

// BackupService handles database backup and restore operations
type BackupService struct {
	db  *database.DB
	log *zap.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, log *zap.Logger) *BackupService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BackupService{db: db, log: log}
}

// Export creates a complete backup of the database to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, file); err != nil {
		return err
	}
	return file.Close()
}

// ExportToWriter writes the backup as indented JSON
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	backup, err := s.snapshot(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	s.log.Info("database exported",
		zap.Int("users", len(backup.Users)),
		zap.Int("studies", len(backup.Studies)),
		zap.Int("memberships", len(backup.Memberships)),
		zap.Int("responses", len(backup.Responses)))
	return nil
}

func (s *BackupService) snapshot(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{
		Version:      BackupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: "universal",
	}

	users, err := repository.NewUserRepository(s.db).GetAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	for _, u := range users {
		backup.Users = append(backup.Users, UserBackup{
			ID: u.ID, Username: u.Username, Email: u.Email, PasswordHash: u.PasswordHash,
			Role: u.Role, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
		})
	}

	studyRepo := repository.NewStudyRepository(s.db)
	responseRepo := repository.NewResponseRepository(s.db)
	studies, err := studyRepo.ListStudies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export studies: %w", err)
	}
	for _, st := range studies {
		sb := StudyBackup{Study: st}
		if sb.Modules, err = studyRepo.ListModules(ctx, st.ID); err != nil {
			return nil, fmt.Errorf("failed to export modules: %w", err)
		}
		if sb.Questions, err = studyRepo.ListQuestions(ctx, st.ID); err != nil {
			return nil, fmt.Errorf("failed to export questions: %w", err)
		}
		backup.Studies = append(backup.Studies, sb)

		rows, err := responseRepo.ListResponses(ctx, repository.ResponseFilter{StudyID: st.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to export responses: %w", err)
		}
		backup.Responses = append(backup.Responses, rows...)
	}

	if backup.Memberships, err = studyRepo.ListMemberships(ctx); err != nil {
		return nil, fmt.Errorf("failed to export memberships: %w", err)
	}
	return backup, nil
}

// Import restores a database from a backup file
func (s *BackupService) Import(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()
	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores a backup in a single transaction, keeping the
// original IDs. Rows that clash with existing data abort the whole import.
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader) error {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return fmt.Errorf("unsupported backup version %q", backup.Version)
	}
	s.log.Info("importing backup", zap.String("version", backup.Version), zap.Time("exported_at", backup.ExportedAt))

	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		users := repository.NewUserRepository(tx)
		for _, u := range backup.Users {
			err := users.InsertUser(ctx, &models.User{
				ID: u.ID, Username: u.Username, Email: u.Email, PasswordHash: u.PasswordHash,
				Role: u.Role, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
			})
			if err != nil {
				return err
			}
		}

		studies := repository.NewStudyRepository(tx)
		for _, sb := range backup.Studies {
			st := sb.Study
			if err := studies.CreateStudy(ctx, &st); err != nil {
				return err
			}
			for _, m := range sb.Modules {
				m.StudyID = st.ID
				if err := studies.CreateModule(ctx, &m); err != nil {
					return err
				}
			}
			for _, q := range sb.Questions {
				q.StudyID = st.ID
				if err := studies.CreateQuestion(ctx, &q); err != nil {
					return err
				}
			}
		}
		for _, m := range backup.Memberships {
			if err := studies.AddMember(ctx, m.UserID, m.StudyID); err != nil {
				return err
			}
		}

		responses := repository.NewResponseRepository(tx)
		for _, r := range backup.Responses {
			if err := responses.InsertResponse(ctx, &r); err != nil {
				return err
			}
		}

		for _, table := range []string{"users", "studies", "responses"} {
			if q := tx.GetDialect().SyncSequenceQuery(table); q != "" {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					return fmt.Errorf("failed to sync %s sequence: %w", table, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	s.log.Info("database imported",
		zap.Int("users", len(backup.Users)),
		zap.Int("studies", len(backup.Studies)),
		zap.Int("responses", len(backup.Responses)))
	return nil
}

// Clear deletes all data, children first
func (s *BackupService) Clear(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, table := range backupTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear table %s: %w", table, err)
			}
			s.log.Info("cleared table", zap.String("table", table))
		}
		return nil
	})
}
