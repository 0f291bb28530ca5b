package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"talentCorner/internal/config"
	"talentCorner/internal/database"
	"talentCorner/internal/database/dbtest"
	"talentCorner/internal/errcode"
	"talentCorner/internal/mailer"
)

var errSMTPDown = errors.New("smtp: 421 service not available")

type fakeSender struct {
	mu     sync.Mutex
	calls  map[string]int
	sent   []mailer.Message
	broken map[string]bool
	onSend func(mailer.Message)
}

func newFakeSender(broken ...string) *fakeSender {
	f := &fakeSender{calls: map[string]int{}, broken: map[string]bool{}}
	for _, b := range broken {
		f.broken[b] = true
	}
	return f
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	if f.onSend != nil {
		f.onSend(msg)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[msg.To]++
	if f.broken[msg.To] {
		return errSMTPDown
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) callsTo(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[addr]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
	keys   []string
}

func (p *fakePublisher) Publish(_ context.Context, key string, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, ev)
	return nil
}

type recordedSleeps struct {
	mu sync.Mutex
	ds []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ds = append(r.ds, d)
	return ctx.Err()
}

func testMailConfig() config.MailConfig {
	return config.MailConfig{Attempts: 3, Backoff: 5 * time.Millisecond, MaxInFlight: 4}
}

func newTestService(t *testing.T, sender mailer.Sender, pub Publisher) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	d := NewDispatcher(sender, testMailConfig(), nil)
	d.sleep = (&recordedSleeps{}).sleep
	r, err := NewRenderer(config.NotifyConfig{InviteFormURL: "http://forms.test/candidate", EvaluationFormURL: "http://forms.test/domain"})
	require.NoError(t, err)
	return NewService(db, d, r, pub, nil), db
}

func TestSendWithRetryStopsAfterAttempts(t *testing.T) {
	sender := newFakeSender("down@example.com")
	d := NewDispatcher(sender, testMailConfig(), nil)
	sleeps := &recordedSleeps{}
	d.sleep = sleeps.sleep

	err := d.SendWithRetry(context.Background(), mailer.Message{To: "down@example.com"})
	require.Error(t, err)
	assert.Equal(t, errcode.TransientIO, errcode.CodeOf(err))
	assert.True(t, errors.Is(err, errSMTPDown))
	assert.Equal(t, 3, sender.callsTo("down@example.com"))
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, sleeps.ds)
}

func TestSendWithRetryRecovers(t *testing.T) {
	sender := newFakeSender()
	failures := 2
	var mu sync.Mutex
	sender.onSend = func(msg mailer.Message) {
		mu.Lock()
		defer mu.Unlock()
		sender.mu.Lock()
		defer sender.mu.Unlock()
		sender.broken[msg.To] = failures > 0
		failures--
	}
	d := NewDispatcher(sender, testMailConfig(), nil)
	d.sleep = (&recordedSleeps{}).sleep

	require.NoError(t, d.SendWithRetry(context.Background(), mailer.Message{To: "flaky@example.com"}))
	assert.Equal(t, 3, sender.callsTo("flaky@example.com"))
}

func TestRunStaggersRecipients(t *testing.T) {
	sender := newFakeSender()
	cfg := testMailConfig()
	cfg.Stagger = time.Hour
	cfg.MaxInFlight = 10
	d := NewDispatcher(sender, cfg, nil)
	sleeps := &recordedSleeps{}
	d.sleep = sleeps.sleep

	recipients := []Recipient{{ID: 1, Email: "a@x.com"}, {ID: 2, Email: "b@x.com"}, {ID: 3, Email: "c@x.com"}}
	res, err := d.Run(context.Background(), Job{
		Campaign:   "test",
		Recipients: recipients,
		Render:     func(r Recipient) (mailer.Message, error) { return mailer.Message{To: r.Email}, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)

	require.Len(t, sleeps.ds, 3)
	var longest time.Duration
	for _, ds := range sleeps.ds {
		longest = max(longest, ds)
	}
	assert.InDelta(t, float64(2*time.Hour), float64(longest), float64(time.Minute))
}

func TestRunMarksOnlyAfterSend(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	sender := newFakeSender("bad@x.com")
	sender.onSend = func(msg mailer.Message) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "send:"+msg.To)
	}
	d := NewDispatcher(sender, testMailConfig(), nil)
	d.sleep = (&recordedSleeps{}).sleep

	res, err := d.Run(context.Background(), Job{
		Campaign:   "test",
		Policy:     Isolate,
		Recipients: []Recipient{{ID: 1, Email: "ok@x.com"}, {ID: 2, Email: "bad@x.com"}},
		Render:     func(r Recipient) (mailer.Message, error) { return mailer.Message{To: r.Email}, nil },
		MarkSent: func(_ context.Context, r Recipient) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, "mark:"+r.Email)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "bad@x.com", res.Failed[0].Email)
	assert.Equal(t, "email delivery failed", res.Failed[0].Error)

	assert.NotContains(t, order, "mark:bad@x.com")
	markAt, sendAt := -1, -1
	for i, step := range order {
		switch step {
		case "send:ok@x.com":
			sendAt = i
		case "mark:ok@x.com":
			markAt = i
		}
	}
	require.NotEqual(t, -1, markAt)
	assert.Less(t, sendAt, markAt)
}

func TestInviteImportedFailFast(t *testing.T) {
	sender := newFakeSender("bad@x.com")
	pub := &fakePublisher{}
	svc, db := newTestService(t, sender, pub)
	ctx := context.Background()

	require.NoError(t, db.Create(&[]database.ImportedRecord{
		{FullName: "Ana", Email: "ana@x.com", PhoneNo: "1"},
		{FullName: "Bad", Email: "bad@x.com", PhoneNo: "2"},
		{FullName: "Cy", Email: "cy@x.com", PhoneNo: "3"},
	}).Error)
	one := 1
	require.NoError(t, db.Create(&database.ImportedRecord{FullName: "Old", Email: "old@x.com", PhoneNo: "4", EmailSent: &one}).Error)

	res, err := svc.InviteImported(ctx, Request{Org: Org{Name: "Acme", Email: "hr@acme.test"}})
	require.Error(t, err)
	assert.Equal(t, errcode.TransientIO, errcode.CodeOf(err))
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 3, sender.callsTo("bad@x.com"))
	assert.Equal(t, 0, sender.callsTo("old@x.com"))

	flags := map[string]int{}
	var rows []database.ImportedRecord
	require.NoError(t, db.Find(&rows).Error)
	for _, r := range rows {
		flags[r.Email] = *r.EmailSent
	}
	assert.Equal(t, map[string]int{"ana@x.com": 1, "bad@x.com": 0, "cy@x.com": 1, "old@x.com": 1}, flags)

	var count database.OrgEmailCount
	require.NoError(t, db.Where("org_name = ?", "acme").First(&count).Error)
	assert.EqualValues(t, 2, count.EmailSentCount)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.NotEmpty(t, pub.events)
	last := pub.events[len(pub.events)-1]
	assert.Equal(t, StatusDone, last.Status)
	assert.Equal(t, 2, last.Sent)
	assert.Equal(t, 1, last.Failed)
	assert.Equal(t, "acme", pub.keys[0])
}

func TestDeliveredEmailIsRecordedAfterCancel(t *testing.T) {
	sender := newFakeSender()
	svc, db := newTestService(t, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 客户端在 SMTP 已经接受邮件后断开。
	sender.onSend = func(mailer.Message) { cancel() }

	require.NoError(t, db.Create(&database.ImportedRecord{FullName: "Bea", Email: "b@x.com", PhoneNo: "1"}).Error)

	res, err := svc.InviteImported(ctx, Request{Org: Org{Name: "Acme"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, sender.callsTo("b@x.com"))

	var row database.ImportedRecord
	require.NoError(t, db.Where("email = ?", "b@x.com").First(&row).Error)
	require.NotNil(t, row.EmailSent)
	assert.Equal(t, 1, *row.EmailSent)

	var count database.OrgEmailCount
	require.NoError(t, db.Where("org_name = ?", "acme").First(&count).Error)
	assert.EqualValues(t, 1, count.EmailSentCount)
}

func TestInviteDetailsNothingPending(t *testing.T) {
	sender := newFakeSender()
	svc, _ := newTestService(t, sender, nil)

	res, err := svc.InviteDetails(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, sender.sent)
}

func TestInviteDetailsUsesFullName(t *testing.T) {
	sender := newFakeSender()
	svc, db := newTestService(t, sender, nil)

	require.NoError(t, db.Create(&database.CandidateDetail{FirstName: "Ana", MiddleName: "B", LastName: "Lima", Email: "ana@x.com"}).Error)

	res, err := svc.InviteDetails(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].HTML, "Dear Ana B Lima")
	assert.Contains(t, sender.sent[0].HTML, "http://forms.test/domain")
}

func TestNotifySelectedIsolatesFailures(t *testing.T) {
	sender := newFakeSender("bad@x.com")
	svc, db := newTestService(t, sender, nil)

	rows := []database.CandidateRanking{
		{FirstName: "Ana", Email: "ana@x.com", Domain: "Tech", SubDomain: "Go"},
		{FirstName: "Bad", Email: "bad@x.com", Domain: "Tech", SubDomain: "Rust"},
		{FirstName: "Cy", Email: "cy@x.com", Domain: "Tech", SubDomain: "Java"},
	}
	require.NoError(t, db.Create(&rows).Error)

	res, err := svc.NotifySelected(context.Background(), Request{
		Org: Org{Name: "Acme"},
		IDs: []uint{rows[0].ID, rows[1].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, rows[1].ID, res.Failed[0].ID)

	var statuses []int
	require.NoError(t, db.Model(&database.CandidateRanking{}).Order("id").Pluck("email_status", &statuses).Error)
	assert.Equal(t, []int{1, 0, 0}, statuses)

	_, err = svc.NotifySelected(context.Background(), Request{})
	assert.True(t, errors.Is(err, ErrNoIDs))
}

func TestRunUnknownCampaign(t *testing.T) {
	svc, _ := newTestService(t, newFakeSender(), nil)
	_, err := svc.Run(context.Background(), "spam", Request{})
	assert.True(t, errors.Is(err, ErrUnknownCampaign))
}

func TestNotifyCandidateForOrgIsIdempotent(t *testing.T) {
	sender := newFakeSender()
	svc, db := newTestService(t, sender, nil)
	ctx := context.Background()
	org := Org{Name: "Acme Corp", Email: "hr@acme.test"}
	contact := Contact{Email: "Ana@X.com", Name: "Ana", Domain: "Tech", SubDomain: "Go"}

	already, err := svc.NotifyCandidateForOrg(ctx, org, contact)
	require.NoError(t, err)
	assert.False(t, already)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "hr@acme.test", msg.From)
	assert.Equal(t, "Acme Corp", msg.FromName)
	assert.Equal(t, "hr@acme.test", msg.ReplyTo)
	assert.Contains(t, msg.Text, "opportunity in the Go domain")

	already, err = svc.NotifyCandidateForOrg(ctx, Org{Name: "ACME CORP", Email: "hr@acme.test"}, contact)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Len(t, sender.sent, 1)

	var status database.CandidateEmailStatus
	require.NoError(t, db.First(&status).Error)
	assert.Equal(t, "ana@x.com", status.CandidateEmail)
	assert.Equal(t, "acme corp", status.OrgName)
	assert.Equal(t, 1, status.EmailStatus)

	var count database.OrgEmailCount
	require.NoError(t, db.Where("org_name = ?", "acme corp").First(&count).Error)
	assert.EqualValues(t, 1, count.EmailSentCount)

	// another organization may still write to the same candidate
	already, err = svc.NotifyCandidateForOrg(ctx, Org{Name: "Globex", Email: "jobs@globex.test"}, contact)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Len(t, sender.sent, 2)
}

func TestNotifyCandidateForOrgRecordsAfterCancel(t *testing.T) {
	sender := newFakeSender()
	svc, db := newTestService(t, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender.onSend = func(mailer.Message) { cancel() }

	org := Org{Name: "Acme", Email: "hr@acme.test"}
	contact := Contact{Email: "ana@x.com", Name: "Ana", Domain: "Tech", SubDomain: "Go"}
	already, err := svc.NotifyCandidateForOrg(ctx, org, contact)
	require.NoError(t, err)
	assert.False(t, already)

	already, err = svc.NotifyCandidateForOrg(context.Background(), org, contact)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, 1, sender.callsTo("ana@x.com"))

	var status database.CandidateEmailStatus
	require.NoError(t, db.First(&status).Error)
	assert.Equal(t, 1, status.EmailStatus)
}

func TestNotifyCandidateForOrgDeliveryFailure(t *testing.T) {
	sender := newFakeSender("ana@x.com")
	svc, db := newTestService(t, sender, nil)

	_, err := svc.NotifyCandidateForOrg(context.Background(), Org{Name: "Acme", Email: "hr@acme.test"},
		Contact{Email: "ana@x.com", Name: "Ana", Domain: "Tech", SubDomain: "Go"})
	require.Error(t, err)
	assert.Equal(t, errcode.TransientIO, errcode.CodeOf(err))

	var n int64
	require.NoError(t, db.Model(&database.CandidateEmailStatus{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRendererEscapesNames(t *testing.T) {
	r, err := NewRenderer(config.NotifyConfig{InviteFormURL: "http://forms.test/candidate", Brand: "Talent Corner"})
	require.NoError(t, err)

	msg, err := r.Invite("<b>Ana</b>", "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Form Submission Invitation", msg.Subject)
	assert.Contains(t, msg.HTML, "&lt;b&gt;Ana&lt;/b&gt;")
	assert.Contains(t, msg.HTML, `href="http://forms.test/candidate"`)

	otp, err := r.OTP("reset", "org@x.com", "123456", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "Your Password Reset OTP for Talent Corner", otp.Subject)
	assert.Contains(t, otp.Text, "123456")
	assert.Contains(t, otp.Text, "10 minutes")
}
