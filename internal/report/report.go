// Package report answers the read-only dashboard queries over rankings, accounts and
// notification counters.
package report

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"talentCorner/internal/auth"
	"talentCorner/internal/database"
	"talentCorner/internal/errcode"
)

// YearCount is the number of ranking rows submitted in a year.
type YearCount struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

// DomainCount is the number of ranking rows of a domain.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

// SubDomainCount is the number of ranking rows of a sub-domain.
type SubDomainCount struct {
	SubDomain string `json:"sub_domain"`
	Count     int64  `json:"count"`
}

// OrgCount is the number of candidate emails an organization delivered.
type OrgCount struct {
	OrgName        string `json:"org_name"`
	EmailSentCount int64  `json:"email_sent_count"`
}

// Dashboard is the summary shown to a signed-in organization.
type Dashboard struct {
	TotalSignups    int64    `json:"totalSignups"`
	TotalEmailsSent int64    `json:"totalEmailsSent"`
	TotalCandidates int64    `json:"totalCandidates"`
	SignupDates     []string `json:"signupDates"`
	SignupCounts    []int64  `json:"signupCounts"`
}

// Reporter 只读聚合查询。
type Reporter struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewReporter(db *gorm.DB, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{db: db, logger: logger}
}

func (r *Reporter) rankings(ctx context.Context, year *int) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&database.CandidateRanking{})
	if year != nil {
		q = q.Where("year = ?", *year)
	}
	return q
}

// Total counts every ranking row.
func (r *Reporter) Total(ctx context.Context) (int64, error) {
	var n int64
	if err := r.rankings(ctx, nil).Count(&n).Error; err != nil {
		return 0, errcode.Persistence("count rankings", err)
	}
	return n, nil
}

// ByYear groups ranking rows by submission year, oldest first.
func (r *Reporter) ByYear(ctx context.Context) ([]YearCount, error) {
	out := []YearCount{}
	if err := r.rankings(ctx, nil).
		Select("year, COUNT(*) AS count").
		Group("year").
		Order("year ASC").
		Scan(&out).Error; err != nil {
		return nil, errcode.Persistence("count by year", err)
	}
	return out, nil
}

// ByDomain groups case-insensitively; each group is labelled with its first spelling.
// year, when set, filters rows and leaves the grouping unchanged.
func (r *Reporter) ByDomain(ctx context.Context, year *int) ([]DomainCount, error) {
	out := []DomainCount{}
	if err := r.rankings(ctx, year).
		Select("MIN(domain) AS domain, COUNT(*) AS count").
		Group("LOWER(domain)").
		Order("count DESC, domain ASC").
		Scan(&out).Error; err != nil {
		return nil, errcode.Persistence("count by domain", err)
	}
	return out, nil
}

// BySubDomain groups ranking rows by sub-domain with the same rules as ByDomain.
func (r *Reporter) BySubDomain(ctx context.Context, year *int) ([]SubDomainCount, error) {
	out := []SubDomainCount{}
	if err := r.rankings(ctx, year).
		Select("MIN(sub_domain) AS sub_domain, COUNT(*) AS count").
		Group("LOWER(sub_domain)").
		Order("count DESC, sub_domain ASC").
		Scan(&out).Error; err != nil {
		return nil, errcode.Persistence("count by sub-domain", err)
	}
	return out, nil
}

// OrgEmailCounts lists delivered candidate emails per organization, busiest first.
func (r *Reporter) OrgEmailCounts(ctx context.Context) ([]OrgCount, error) {
	out := []OrgCount{}
	if err := r.db.WithContext(ctx).
		Model(&database.OrgEmailCount{}).
		Select("org_name, email_sent_count").
		Order("email_sent_count DESC, org_name ASC").
		Scan(&out).Error; err != nil {
		return nil, errcode.Persistence("list org email counts", err)
	}
	return out, nil
}

// Dashboard builds the summary for org. Signups are bucketed per UTC calendar day.
func (r *Reporter) Dashboard(ctx context.Context, org string) (Dashboard, error) {
	db := r.db.WithContext(ctx)
	out := Dashboard{SignupDates: []string{}, SignupCounts: []int64{}}

	var created []time.Time
	if err := db.Model(&database.OrgAccount{}).Pluck("created_at", &created).Error; err != nil {
		return out, errcode.Persistence("load signups", err)
	}
	out.TotalSignups = int64(len(created))

	buckets := map[string]int64{}
	for _, ts := range created {
		buckets[ts.UTC().Format(time.DateOnly)]++
	}
	for day := range buckets {
		out.SignupDates = append(out.SignupDates, day)
	}
	sort.Strings(out.SignupDates)
	for _, day := range out.SignupDates {
		out.SignupCounts = append(out.SignupCounts, buckets[day])
	}

	var counts []int64
	if err := db.Model(&database.OrgEmailCount{}).
		Where("org_name = ?", auth.OrganizationKey(org)).
		Limit(1).
		Pluck("email_sent_count", &counts).Error; err != nil {
		return out, errcode.Persistence("load org email count", err)
	}
	if len(counts) > 0 {
		out.TotalEmailsSent = counts[0]
	}

	total, err := r.Total(ctx)
	if err != nil {
		return out, err
	}
	out.TotalCandidates = total
	return out, nil
}
