// Package records owns the imported-records and candidate-details tables outside of the
// import pipeline: listing, admin edits, deletes and the public intake form.
package records

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"talentCorner/internal/database"
	"talentCorner/internal/errcode"
	"talentCorner/internal/storage"
)

var (
	ErrMissingID    = errcode.NewValidation("Missing record id.")
	ErrNoIDs        = errcode.NewValidation("No record ids provided.")
	ErrNotFound     = errcode.NewNotFound("Record not found.")
	ErrNoResume     = errcode.NewNotFound("No resume uploaded for this candidate.")
	ErrMissingField = errcode.NewValidation("Full_Name and Email are required.")
)

// ImportedHeaders 与前端表格列一致。
var ImportedHeaders = []string{"ID", "Full Name", "Email", "Phone No", "Token URL"}

// DetailHeaders lists the columns of the candidate-details table view.
var DetailHeaders = []string{
	"id", "name", "email", "contact_number", "gender",
	"city", "college", "created_at", "email_sent", "token_url",
}

// Listing is a table view: column headers plus rows.
type Listing[T any] struct {
	Headers []string `json:"headers"`
	Rows    []T      `json:"rows"`
}

// Store 提供两张候选人表的增删改查；简历对象随候选人记录一起删除。
type Store struct {
	db      *gorm.DB
	objects storage.ObjectStore
	scanner storage.Scanner
	urlTTL  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewStore(db *gorm.DB, objects storage.ObjectStore, scanner storage.Scanner, urlTTL time.Duration, logger *slog.Logger) *Store {
	if scanner == nil {
		scanner = storage.NopScanner{}
	}
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, objects: objects, scanner: scanner, urlTTL: urlTTL, logger: logger, now: time.Now}
}

// ListImported returns every imported row in id order.
func (s *Store) ListImported(ctx context.Context) (Listing[database.ImportedRecord], error) {
	var rows []database.ImportedRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return Listing[database.ImportedRecord]{}, errcode.Persistence("list imported records", err)
	}
	return Listing[database.ImportedRecord]{Headers: ImportedHeaders, Rows: rows}, nil
}

// ImportedEdit replaces the editable columns of one imported row.
type ImportedEdit struct {
	ID          uint   `json:"id"`
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	TokenURL    string `json:"token_url"`
	EmailStatus int    `json:"emailStatus"`
}

func (s *Store) ModifyImported(ctx context.Context, e ImportedEdit) error {
	if e.ID == 0 {
		return ErrMissingID
	}
	return s.modify(ctx, &database.ImportedRecord{}, e.ID, map[string]any{
		"full_name":  strings.TrimSpace(e.FullName),
		"email":      strings.TrimSpace(e.Email),
		"phone_no":   strings.TrimSpace(e.Phone),
		"token_url":  strings.TrimSpace(e.TokenURL),
		"email_sent": flag(e.EmailStatus),
	})
}

// DeleteImported removes the given rows and reports how many existed.
func (s *Store) DeleteImported(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	res := s.db.WithContext(ctx).Delete(&database.ImportedRecord{}, ids)
	if res.Error != nil {
		return 0, errcode.Persistence("delete imported records", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) DeleteAllImported(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&database.ImportedRecord{})
	if res.Error != nil {
		return 0, errcode.Persistence("delete all imported records", res.Error)
	}
	return res.RowsAffected, nil
}

// DetailRow is one line of the candidate-details table view.
type DetailRow struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	ContactNumber string    `json:"contact_number"`
	Gender        string    `json:"gender"`
	City          string    `json:"city"`
	College       string    `json:"college"`
	CreatedAt     time.Time `json:"created_at"`
	EmailSent     int       `json:"email_sent"`
	TokenURL      string    `json:"token_url"`
	Domain        string    `json:"domain"`
	SubDomain     string    `json:"subdomain"`
	HasResume     bool      `json:"has_resume"`
}

func (s *Store) ListDetails(ctx context.Context) (Listing[DetailRow], error) {
	var rows []database.CandidateDetail
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return Listing[DetailRow]{}, errcode.Persistence("list candidate details", err)
	}
	out := make([]DetailRow, 0, len(rows))
	for _, r := range rows {
		sent := 0
		if r.EmailSent != nil {
			sent = *r.EmailSent
		}
		out = append(out, DetailRow{
			ID:            r.ID,
			Name:          r.FullName(),
			Email:         r.Email,
			ContactNumber: r.ContactNumber,
			Gender:        r.Gender,
			City:          r.City,
			College:       r.College,
			CreatedAt:     r.CreatedAt,
			EmailSent:     sent,
			TokenURL:      r.TokenURL,
			Domain:        r.Domain,
			SubDomain:     r.SubDomain,
			HasResume:     r.ResumeURL != "",
		})
	}
	return Listing[DetailRow]{Headers: DetailHeaders, Rows: out}, nil
}

// DetailEdit replaces the editable columns of one candidate-details row.
type DetailEdit struct {
	ID            uint   `json:"id"`
	FirstName     string `json:"first_name"`
	MiddleName    string `json:"middle_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	ContactNumber string `json:"contact_number"`
	Gender        string `json:"gender"`
	City          string `json:"city"`
	College       string `json:"college"`
	TokenURL      string `json:"token_url"`
	EmailStatus   int    `json:"emailStatus"`
}

func (s *Store) ModifyDetail(ctx context.Context, e DetailEdit) error {
	if e.ID == 0 {
		return ErrMissingID
	}
	return s.modify(ctx, &database.CandidateDetail{}, e.ID, map[string]any{
		"first_name":     strings.TrimSpace(e.FirstName),
		"middle_name":    strings.TrimSpace(e.MiddleName),
		"last_name":      strings.TrimSpace(e.LastName),
		"email":          strings.TrimSpace(e.Email),
		"contact_number": strings.TrimSpace(e.ContactNumber),
		"gender":         strings.TrimSpace(e.Gender),
		"city":           strings.TrimSpace(e.City),
		"college":        strings.TrimSpace(e.College),
		"token_url":      strings.TrimSpace(e.TokenURL),
		"email_sent":     flag(e.EmailStatus),
	})
}

// DeleteDetails removes rows and then their stored resumes. A resume that cannot be removed
// is logged; the rows are already gone.
func (s *Store) DeleteDetails(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	var keys []string
	if err := s.db.WithContext(ctx).Model(&database.CandidateDetail{}).
		Where("id IN ?", ids).Pluck("resume_url", &keys).Error; err != nil {
		return 0, errcode.Persistence("load resume keys", err)
	}
	res := s.db.WithContext(ctx).Delete(&database.CandidateDetail{}, ids)
	if res.Error != nil {
		return 0, errcode.Persistence("delete candidate details", res.Error)
	}
	for _, key := range keys {
		if !isStoredResume(key) || s.objects == nil {
			continue
		}
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logger.Warn("delete resume object failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return res.RowsAffected, nil
}

// DeleteAllDetails wipes the table and every stored resume.
func (s *Store) DeleteAllDetails(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&database.CandidateDetail{})
	if res.Error != nil {
		return 0, errcode.Persistence("delete all candidate details", res.Error)
	}
	if s.objects != nil {
		if err := s.objects.DeletePrefix(ctx, storage.ResumePrefix); err != nil {
			s.logger.Warn("delete resume objects failed", slog.Any("error", err))
		}
	}
	return res.RowsAffected, nil
}

// ResumeURL returns a link to the resume of candidate id. Stored objects get a time-limited
// link; a URL the candidate typed in is returned unchanged.
func (s *Store) ResumeURL(ctx context.Context, id uint) (string, error) {
	var row database.CandidateDetail
	if err := s.db.WithContext(ctx).Select("id", "resume_url").First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", errcode.Persistence("load candidate", err)
	}
	key := strings.TrimSpace(row.ResumeURL)
	switch {
	case key == "":
		return "", ErrNoResume
	case !isStoredResume(key) || s.objects == nil:
		return key, nil
	}
	u, err := s.objects.URL(ctx, key, s.urlTTL)
	if err != nil {
		return "", errcode.Wrap(errcode.SystemError, "resume url", err)
	}
	return u, nil
}

func (s *Store) modify(ctx context.Context, model any, id uint, cols map[string]any) error {
	res := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return errcode.Persistence("modify record", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isStoredResume(key string) bool { return strings.HasPrefix(key, storage.ResumePrefix) }

func flag(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}
