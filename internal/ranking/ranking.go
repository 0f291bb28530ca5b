// Package ranking stores domain assessment submissions and keeps each (domain, sub-domain)
// partition densely ranked.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"talentCorner/internal/database"
	"talentCorner/internal/errcode"
	"talentCorner/internal/metrics"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
	ShortlistSize   = 3
)

var (
	ErrDuplicateSubmission = errcode.NewDuplicate("Already submitted for this subdomain.")
	ErrNotFound            = errcode.NewNotFound("Candidate not found.")
	ErrNoIDs               = errcode.NewValidation("No record ids provided.")
	ErrEmptyPatch          = errcode.NewValidation("No updatable fields provided.")
)

const rerankSQL = `UPDATE candidate_rankings SET candidate_rank = ranked.rn
FROM (
	SELECT id, ROW_NUMBER() OVER (ORDER BY marks DESC, completion_seconds ASC, id ASC) AS rn
	FROM candidate_rankings
	WHERE LOWER(domain) = LOWER(?) AND LOWER(sub_domain) = LOWER(?)
) AS ranked
WHERE candidate_rankings.id = ranked.id`

// Submission is one completed domain assessment.
type Submission struct {
	FirstName   string     `json:"firstName"`
	MiddleName  string     `json:"middleName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email" binding:"required,notblank"`
	Phone       string     `json:"phone"`
	College     string     `json:"college"`
	University  string     `json:"university"`
	Degree      string     `json:"degree"`
	Domain      string     `json:"domain" binding:"required,notblank"`
	SubDomain   string     `json:"subdomain" binding:"required,notblank"`
	Score       LenientInt `json:"score"`
	ElapsedTime LenientInt `json:"elapsedTimeInSeconds"`
}

// Engine 负责测评提交、分区重排以及排名表的增删改查。
type Engine struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(db *gorm.DB, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, logger: logger, now: time.Now}
}

// Submit records s and re-ranks its partition. The duplicate check, the insert and the re-rank
// share one transaction; a second submission for the same (email, sub-domain) returns
// ErrDuplicateSubmission and changes nothing.
func (e *Engine) Submit(ctx context.Context, s Submission) (*database.CandidateRanking, error) {
	now := e.now()
	row := &database.CandidateRanking{
		SubmittedAt:       now,
		FirstName:         strings.TrimSpace(s.FirstName),
		MiddleName:        strings.TrimSpace(s.MiddleName),
		LastName:          strings.TrimSpace(s.LastName),
		Email:             strings.TrimSpace(s.Email),
		PhoneNo:           strings.TrimSpace(s.Phone),
		College:           strings.TrimSpace(s.College),
		University:        strings.TrimSpace(s.University),
		Degree:            strings.TrimSpace(s.Degree),
		Domain:            strings.TrimSpace(s.Domain),
		SubDomain:         strings.TrimSpace(s.SubDomain),
		Marks:             s.Score.Int(),
		CompletionSeconds: s.ElapsedTime.Int(),
		Day:               now.Day(),
		Month:             now.Month().String(),
		Year:              now.Year(),
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&database.CandidateRanking{}).
			Where("LOWER(email) = LOWER(?) AND LOWER(sub_domain) = LOWER(?)", row.Email, row.SubDomain).
			Count(&n).Error; err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if n > 0 {
			return ErrDuplicateSubmission
		}
		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSubmission
			}
			return fmt.Errorf("insert submission: %w", err)
		}
		return Rerank(tx, row.Domain, row.SubDomain)
	})
	switch {
	case errors.Is(err, ErrDuplicateSubmission):
		metrics.ObserveSubmission("duplicate")
		return nil, ErrDuplicateSubmission
	case err != nil:
		metrics.ObserveSubmission("error")
		return nil, errcode.Persistence("submit assessment", err)
	}

	metrics.ObserveSubmission("accepted")
	e.logger.Info("assessment submitted",
		slog.Uint64("id", uint64(row.ID)),
		slog.String("domain", row.Domain),
		slog.String("sub_domain", row.SubDomain),
		slog.Int("marks", row.Marks),
	)
	return row, nil
}

// Rerank rewrites candidate_rank for every row of the partition in a single statement.
// Pass the transaction that changed the partition.
func Rerank(tx *gorm.DB, domain, subDomain string) error {
	if err := tx.Exec(rerankSQL, domain, subDomain).Error; err != nil {
		return fmt.Errorf("rerank %s/%s: %w", domain, subDomain, err)
	}
	return nil
}

// Page holds one page of the ranking table.
type Page struct {
	Rows  []database.CandidateRanking
	Total int64
	Page  int
	Limit int
}

// List returns rows ordered by id. page starts at 1; limit defaults to 50 and is capped at 500.
func (e *Engine) List(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	out := Page{Page: page, Limit: limit}
	db := e.db.WithContext(ctx)
	if err := db.Model(&database.CandidateRanking{}).Count(&out.Total).Error; err != nil {
		return out, errcode.Persistence("count rankings", err)
	}
	if err := db.Order("id ASC").Offset((page - 1) * limit).Limit(limit).Find(&out.Rows).Error; err != nil {
		return out, errcode.Persistence("list rankings", err)
	}
	return out, nil
}

// Get loads a single row.
func (e *Engine) Get(ctx context.Context, id uint) (*database.CandidateRanking, error) {
	var row database.CandidateRanking
	if err := e.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errcode.Persistence("load ranking", err)
	}
	return &row, nil
}

// Patch lists the editable columns of a ranking row; nil fields are left untouched.
// The rank is never editable.
type Patch struct {
	FirstName         *string     `json:"first_name"`
	MiddleName        *string     `json:"middle_name"`
	LastName          *string     `json:"last_name"`
	Email             *string     `json:"email"`
	PhoneNo           *string     `json:"phone_no"`
	College           *string     `json:"college"`
	University        *string     `json:"university"`
	Degree            *string     `json:"degree"`
	Domain            *string     `json:"domain"`
	SubDomain         *string     `json:"sub_domain"`
	Marks             *LenientInt `json:"marks"`
	CompletionSeconds *LenientInt `json:"completion_seconds"`
	EmailStatus       *int        `json:"email_status"`
}

func (p Patch) columns() map[string]any {
	cols := map[string]any{}
	for col, v := range map[string]*string{
		"first_name":  p.FirstName,
		"middle_name": p.MiddleName,
		"last_name":   p.LastName,
		"email":       p.Email,
		"phone_no":    p.PhoneNo,
		"college":     p.College,
		"university":  p.University,
		"degree":      p.Degree,
		"domain":      p.Domain,
		"sub_domain":  p.SubDomain,
	} {
		if v != nil {
			cols[col] = strings.TrimSpace(*v)
		}
	}
	if p.Marks != nil {
		cols["marks"] = p.Marks.Int()
	}
	if p.CompletionSeconds != nil {
		cols["completion_seconds"] = p.CompletionSeconds.Int()
	}
	if p.EmailStatus != nil {
		cols["email_status"] = *p.EmailStatus
	}
	return cols
}

func (p Patch) affectsRank() bool {
	return p.Domain != nil || p.SubDomain != nil || p.Marks != nil || p.CompletionSeconds != nil
}

// Update applies p to row id and re-ranks the old and new partitions when ordering inputs change.
func (e *Engine) Update(ctx context.Context, id uint, p Patch) (*database.CandidateRanking, error) {
	cols := p.columns()
	if len(cols) == 0 {
		return nil, ErrEmptyPatch
	}
	if d, ok := cols["domain"].(string); ok && d == "" {
		return nil, errcode.NewValidation("domain must not be blank")
	}
	if s, ok := cols["sub_domain"].(string); ok && s == "" {
		return nil, errcode.NewValidation("sub_domain must not be blank")
	}

	var row database.CandidateRanking
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, id).Error; err != nil {
			return err
		}
		oldDomain, oldSub := row.Domain, row.SubDomain

		if err := tx.Model(&row).Updates(cols).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateSubmission
			}
			return fmt.Errorf("update ranking: %w", err)
		}
		if p.affectsRank() {
			newDomain, newSub := oldDomain, oldSub
			if d, ok := cols["domain"].(string); ok {
				newDomain = d
			}
			if s, ok := cols["sub_domain"].(string); ok {
				newSub = s
			}
			if err := Rerank(tx, oldDomain, oldSub); err != nil {
				return err
			}
			if !samePartition(oldDomain, oldSub, newDomain, newSub) {
				if err := Rerank(tx, newDomain, newSub); err != nil {
					return err
				}
			}
		}
		return tx.First(&row, id).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case errors.Is(err, ErrDuplicateSubmission):
		return nil, ErrDuplicateSubmission
	case err != nil:
		return nil, errcode.Persistence("update ranking", err)
	}
	return &row, nil
}

type partition struct {
	Domain    string
	SubDomain string
}

func samePartition(d1, s1, d2, s2 string) bool {
	return strings.EqualFold(d1, d2) && strings.EqualFold(s1, s2)
}

// Delete removes the given rows and re-ranks every partition they belonged to.
func (e *Engine) Delete(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}

	var deleted int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parts []partition
		if err := tx.Model(&database.CandidateRanking{}).
			Distinct("LOWER(domain) AS domain", "LOWER(sub_domain) AS sub_domain").
			Where("id IN ?", ids).
			Scan(&parts).Error; err != nil {
			return fmt.Errorf("collect partitions: %w", err)
		}

		res := tx.Where("id IN ?", ids).Delete(&database.CandidateRanking{})
		if res.Error != nil {
			return fmt.Errorf("delete rankings: %w", res.Error)
		}
		deleted = res.RowsAffected

		for _, p := range parts {
			if err := Rerank(tx, p.Domain, p.SubDomain); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errcode.Persistence("delete rankings", err)
	}
	e.logger.Info("rankings deleted", slog.Int64("deleted", deleted))
	return deleted, nil
}

// DeleteAll empties the ranking table.
func (e *Engine) DeleteAll(ctx context.Context) (int64, error) {
	res := e.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&database.CandidateRanking{})
	if res.Error != nil {
		return 0, errcode.Persistence("delete all rankings", res.Error)
	}
	e.logger.Warn("all rankings deleted", slog.Int64("deleted", res.RowsAffected))
	return res.RowsAffected, nil
}

// ShortlistEntry is one top-ranked candidate annotated with the calling organization's
// email status (0 when the organization never contacted them).
type ShortlistEntry struct {
	ID          uint   `json:"id"`
	FirstName   string `json:"-"`
	MiddleName  string `json:"-"`
	LastName    string `json:"-"`
	FullName    string `json:"full_name" gorm:"-"`
	Email       string `json:"email"`
	PhoneNo     string `json:"phone_no"`
	Domain      string `json:"domain"`
	SubDomain   string `json:"sub_domain"`
	Day         int    `json:"day"`
	Month       string `json:"month"`
	Year        int    `json:"year"`
	Rank        *int   `json:"rank" gorm:"column:candidate_rank"`
	EmailStatus int    `json:"email_status"`
}

// Shortlist returns the best ranked candidates of a partition for org.
func (e *Engine) Shortlist(ctx context.Context, org, domain, subDomain string, limit int) ([]ShortlistEntry, error) {
	if limit < 1 {
		limit = ShortlistSize
	}

	var out []ShortlistEntry
	err := e.db.WithContext(ctx).
		Table("candidate_rankings AS cr").
		Select(`cr.id, cr.first_name, cr.middle_name, cr.last_name, cr.email, cr.phone_no,
			cr.domain, cr.sub_domain, cr.day, cr.month, cr.year, cr.candidate_rank,
			COALESCE(ces.email_status, 0) AS email_status`).
		Joins(`LEFT JOIN candidate_email_statuses AS ces
			ON LOWER(cr.email) = LOWER(ces.candidate_email) AND LOWER(ces.org_name) = LOWER(?)`, org).
		Where("LOWER(cr.domain) = LOWER(?) AND LOWER(cr.sub_domain) = LOWER(?)", domain, subDomain).
		Order("cr.candidate_rank ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, errcode.Persistence("shortlist candidates", err)
	}

	for i := range out {
		out[i].FullName = database.CandidateDetail{
			FirstName:  out[i].FirstName,
			MiddleName: out[i].MiddleName,
			LastName:   out[i].LastName,
		}.FullName()
	}
	return out, nil
}
