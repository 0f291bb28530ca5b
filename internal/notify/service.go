package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"talentCorner/internal/auth"
	"talentCorner/internal/database"
	"talentCorner/internal/errcode"
	"talentCorner/internal/mailer"
	"talentCorner/internal/metrics"
)

// 通知活动名称，同时用作指标标签与异步任务载荷。
const (
	CampaignInvite       = "invite"
	CampaignEvaluation   = "evaluation"
	CampaignSelection    = "selection"
	CampaignOrgCandidate = "org_candidate"
)

var (
	ErrUnknownCampaign = errcode.NewValidation("unknown notification campaign")
	ErrNoIDs           = errcode.NewValidation("No record ids provided.")
)

// Org identifies the organization acting on a campaign.
type Org struct {
	Name  string
	Email string
}

// Key is the case-insensitive organization identity used for counters and channels.
func (o Org) Key() string { return auth.OrganizationKey(o.Name) }

// Request describes one campaign run.
type Request struct {
	Org           Org
	IDs           []uint
	CorrelationID string
}

// Service 把选人、渲染、投递和状态回写串成完整的通知活动。
type Service struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	renderer   *Renderer
	publisher  Publisher
	logger     *slog.Logger
}

func NewService(db *gorm.DB, dispatcher *Dispatcher, renderer *Renderer, publisher Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:         db,
		dispatcher: dispatcher,
		renderer:   renderer,
		publisher:  publisher,
		logger:     logger,
	}
}

// Run executes the named bulk campaign.
func (s *Service) Run(ctx context.Context, campaign string, req Request) (Result, error) {
	switch campaign {
	case CampaignInvite:
		return s.InviteImported(ctx, req)
	case CampaignEvaluation:
		return s.InviteDetails(ctx, req)
	case CampaignSelection:
		return s.NotifySelected(ctx, req)
	default:
		return Result{}, ErrUnknownCampaign
	}
}

// InviteImported emails the intake form link to every imported contact not yet notified.
func (s *Service) InviteImported(ctx context.Context, req Request) (Result, error) {
	var rows []database.ImportedRecord
	if err := s.db.WithContext(ctx).
		Where("email_sent = 0 OR email_sent IS NULL").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return Result{}, errcode.Persistence("select imported records", err)
	}

	recipients := make([]Recipient, 0, len(rows))
	for _, r := range rows {
		recipients = append(recipients, Recipient{ID: r.ID, Name: r.FullName, Email: r.Email})
	}
	return s.run(ctx, req, Job{
		Campaign:   CampaignInvite,
		Policy:     FailFast,
		Recipients: recipients,
		Render: func(r Recipient) (mailer.Message, error) {
			return s.renderer.Invite(r.Name, r.Email)
		},
		MarkSent: s.markSent(req.Org, "imported_records", "email_sent"),
	})
}

// InviteDetails emails the assessment link to every intake-form candidate not yet notified.
func (s *Service) InviteDetails(ctx context.Context, req Request) (Result, error) {
	var rows []database.CandidateDetail
	if err := s.db.WithContext(ctx).
		Where("email_sent = 0 OR email_sent IS NULL").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return Result{}, errcode.Persistence("select candidate details", err)
	}

	recipients := make([]Recipient, 0, len(rows))
	for _, r := range rows {
		recipients = append(recipients, Recipient{ID: r.ID, Name: r.FullName(), Email: r.Email})
	}
	return s.run(ctx, req, Job{
		Campaign:   CampaignEvaluation,
		Policy:     FailFast,
		Recipients: recipients,
		Render: func(r Recipient) (mailer.Message, error) {
			return s.renderer.Evaluation(r.Name, r.Email)
		},
		MarkSent: s.markSent(req.Org, "candidate_details", "email_sent"),
	})
}

// NotifySelected sends the selection email to the chosen ranking rows. Failures are reported
// per recipient.
func (s *Service) NotifySelected(ctx context.Context, req Request) (Result, error) {
	if len(req.IDs) == 0 {
		return Result{}, ErrNoIDs
	}

	var rows []database.CandidateRanking
	if err := s.db.WithContext(ctx).Where("id IN ?", req.IDs).Order("id ASC").Find(&rows).Error; err != nil {
		return Result{}, errcode.Persistence("select rankings", err)
	}

	recipients := make([]Recipient, 0, len(rows))
	for _, r := range rows {
		rank := 0
		if r.Rank != nil {
			rank = *r.Rank
		}
		recipients = append(recipients, Recipient{
			ID:        r.ID,
			Name:      r.FullName(),
			Email:     r.Email,
			Domain:    r.Domain,
			SubDomain: r.SubDomain,
			Rank:      rank,
		})
	}
	return s.run(ctx, req, Job{
		Campaign:   CampaignSelection,
		Policy:     Isolate,
		Recipients: recipients,
		Render: func(r Recipient) (mailer.Message, error) {
			return s.renderer.Selection(r.Name, r.Email, r.Domain, r.SubDomain, r.Rank)
		},
		MarkSent: s.markSent(req.Org, "candidate_rankings", "email_status"),
	})
}

func (s *Service) run(ctx context.Context, req Request, job Job) (Result, error) {
	if len(job.Recipients) == 0 {
		s.logger.Info("no pending recipients", slog.String("campaign", job.Campaign))
		return Result{}, nil
	}
	job.OnProgress = s.progress(ctx, req)
	return s.dispatcher.Run(ctx, job)
}

// markSent flips the row's flag and bumps the organization counter in one transaction.
func (s *Service) markSent(org Org, table, column string) func(context.Context, Recipient) error {
	return func(ctx context.Context, r Recipient) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Table(table).Where("id = ?", r.ID).Update(column, 1)
			if res.Error != nil {
				return fmt.Errorf("set %s: %w", column, res.Error)
			}
			if org.Name == "" {
				return nil
			}
			return incrementOrgCount(tx, org.Key())
		})
	}
}

func incrementOrgCount(tx *gorm.DB, orgKey string) error {
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "org_name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"email_sent_count": gorm.Expr("org_email_counts.email_sent_count + 1"),
		}),
	}).Create(&database.OrgEmailCount{OrgName: orgKey, EmailSentCount: 1}).Error
	if err != nil {
		return fmt.Errorf("increment org email count: %w", err)
	}
	return nil
}

func (s *Service) progress(ctx context.Context, req Request) func(Event) {
	key := req.Org.Key()
	if key == "" {
		return nil
	}
	return func(ev Event) {
		ev.CorrelationID = req.CorrelationID
		if err := s.publisher.Publish(ctx, key, ev); err != nil {
			s.logger.Warn("publish notification progress failed", slog.Any("error", err))
		}
	}
}

// Contact is the candidate an organization writes to directly.
type Contact struct {
	Email     string `json:"candidateEmail" binding:"required,notblank"`
	Name      string `json:"candidateName" binding:"required,notblank"`
	Domain    string `json:"domain" binding:"required,notblank"`
	SubDomain string `json:"subDomain" binding:"required,notblank"`
}

// NotifyCandidateForOrg sends one email from org to the candidate unless org already did.
// It reports alreadySent without sending anything in that case.
func (s *Service) NotifyCandidateForOrg(ctx context.Context, org Org, c Contact) (alreadySent bool, err error) {
	orgKey := org.Key()
	candidate := auth.NormalizeEmail(c.Email)
	db := s.db.WithContext(ctx)

	var status database.CandidateEmailStatus
	err = db.Where("candidate_email = ? AND org_name = ?", candidate, orgKey).First(&status).Error
	switch {
	case err == nil && status.EmailStatus == 1:
		return true, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return false, errcode.Persistence("load email status", err)
	}

	msg, err := s.renderer.OrgCandidate(org.Name, org.Email, strings.TrimSpace(c.Name), candidate, strings.TrimSpace(c.SubDomain))
	if err != nil {
		return false, errcode.Wrap(errcode.SystemError, "render email", err)
	}
	if err := s.dispatcher.SendWithRetry(ctx, msg); err != nil {
		metrics.ObserveDelivery(CampaignOrgCandidate, false)
		return false, err
	}

	// 已送达的邮件必须落库，否则下次会重复发送。
	err = s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "candidate_email"}, {Name: "org_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"email_status", "candidate_name", "sub_domain", "updated_at"}),
		}).Create(&database.CandidateEmailStatus{
			CandidateEmail: candidate,
			OrgName:        orgKey,
			EmailStatus:    1,
			CandidateName:  strings.TrimSpace(c.Name),
			SubDomain:      strings.TrimSpace(c.SubDomain),
		}).Error; err != nil {
			return fmt.Errorf("upsert email status: %w", err)
		}
		return incrementOrgCount(tx, orgKey)
	})
	if err != nil {
		return false, errcode.Persistence("record email status", err)
	}

	metrics.ObserveDelivery(CampaignOrgCandidate, true)
	if publish := s.progress(ctx, Request{Org: org}); publish != nil {
		publish(Event{Campaign: CampaignOrgCandidate, Status: StatusSent, Email: candidate, Sent: 1, Total: 1})
	}
	s.logger.Info("candidate email sent", slog.String("org", orgKey), slog.String("candidate", candidate))
	return false, nil
}
