// Package notify sends templated emails to batches of candidates with pacing, bounded
// concurrency and per-recipient retry, and records who was notified.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"talentCorner/internal/config"
	"talentCorner/internal/errcode"
	"talentCorner/internal/mailer"
	"talentCorner/internal/metrics"
)

// Policy decides how a batch reports per-recipient failures.
type Policy int

const (
	// FailFast makes the batch fail with the first recipient error. Every scheduled send still runs.
	FailFast Policy = iota
	// Isolate reports failures per recipient and lets the batch succeed.
	Isolate
)

// Recipient is one row selected for notification.
type Recipient struct {
	ID        uint
	Name      string
	Email     string
	Domain    string
	SubDomain string
	Rank      int
}

// Failure describes a recipient whose email could not be delivered or recorded.
type Failure struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Error string `json:"error"`
}

// Result summarizes a batch.
type Result struct {
	Total  int       `json:"total"`
	Sent   int       `json:"sent"`
	Failed []Failure `json:"failed"`
}

// Job is one batch of a campaign.
type Job struct {
	Campaign   string
	Policy     Policy
	Recipients []Recipient
	Render     func(Recipient) (mailer.Message, error)
	// MarkSent runs only after a confirmed send, with a context that is never cancelled.
	MarkSent   func(ctx context.Context, r Recipient) error
	OnProgress func(Event)
}

// Dispatcher 持有共享的邮件发送器以及节奏、并发、重试参数。
type Dispatcher struct {
	sender      mailer.Sender
	stagger     time.Duration
	attempts    int
	backoff     time.Duration
	maxInFlight int
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(sender mailer.Sender, cfg config.MailConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sender:      sender,
		stagger:     cfg.Stagger,
		attempts:    cfg.Attempts,
		backoff:     cfg.Backoff,
		maxInFlight: cfg.MaxInFlight,
		logger:      logger,
		sleep:       sleepContext,
	}
	if d.attempts < 1 {
		d.attempts = 1
	}
	if d.maxInFlight < 1 {
		d.maxInFlight = 1
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SendWithRetry tries msg up to the configured number of attempts with a fixed backoff between
// them. The last error is returned as a transient delivery error.
func (d *Dispatcher) SendWithRetry(ctx context.Context, msg mailer.Message) error {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		err := d.sender.Send(ctx, msg)
		metrics.ObserveAttempt(err == nil)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == d.attempts {
			break
		}
		d.logger.Warn("retrying email send",
			slog.String("to", msg.To),
			slog.Int("attempts_left", d.attempts-attempt),
			slog.Any("error", err),
		)
		if err := d.sleep(ctx, d.backoff); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}
	return errcode.Transient("send email to "+msg.To, lastErr)
}

// Run schedules every recipient at once. Recipient i starts no earlier than
// start + i*stagger and at most maxInFlight sends run together.
func (d *Dispatcher) Run(ctx context.Context, job Job) (Result, error) {
	var (
		mu       sync.Mutex
		res      Result
		firstErr error
	)
	total := len(job.Recipients)
	res.Total = total
	progress := func(ev Event) {
		if job.OnProgress == nil {
			return
		}
		ev.Campaign = job.Campaign
		ev.Total = total
		job.OnProgress(ev)
	}
	fail := func(r Recipient, err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
		res.Failed = append(res.Failed, Failure{ID: r.ID, Email: r.Email, Error: errcode.MessageOf(err)})
		metrics.ObserveDelivery(job.Campaign, false)
		d.logger.Error("notification failed",
			slog.String("campaign", job.Campaign),
			slog.Uint64("recipient_id", uint64(r.ID)),
			slog.Any("error", err),
		)
		progress(Event{
			Status:       StatusFailed,
			RecipientID:  r.ID,
			Email:        r.Email,
			Sent:         res.Sent,
			Failed:       len(res.Failed),
			ErrorCode:    errcode.CodeOf(err),
			ErrorMessage: errcode.MessageOf(err),
		})
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(d.maxInFlight)
	for i, r := range job.Recipients {
		due := start.Add(time.Duration(i) * d.stagger)
		g.Go(func() error {
			if err := d.sleep(ctx, time.Until(due)); err != nil {
				fail(r, errcode.Transient("send email to "+r.Email, err))
				return nil
			}
			msg, err := job.Render(r)
			if err != nil {
				fail(r, errcode.Wrap(errcode.SystemError, "render email", err))
				return nil
			}
			if err := d.SendWithRetry(ctx, msg); err != nil {
				fail(r, err)
				return nil
			}
			if job.MarkSent != nil {
				// 邮件已经发出，记录不随请求取消。
				if err := job.MarkSent(context.WithoutCancel(ctx), r); err != nil {
					fail(r, errcode.Persistence("mark notified", err))
					return nil
				}
			}

			mu.Lock()
			defer mu.Unlock()
			res.Sent++
			metrics.ObserveDelivery(job.Campaign, true)
			progress(Event{Status: StatusSent, RecipientID: r.ID, Email: r.Email, Sent: res.Sent, Failed: len(res.Failed)})
			return nil
		})
	}
	_ = g.Wait()

	progress(Event{Status: StatusDone, Sent: res.Sent, Failed: len(res.Failed)})
	d.logger.Info("notification batch finished",
		slog.String("campaign", job.Campaign),
		slog.Int("total", total),
		slog.Int("sent", res.Sent),
		slog.Int("failed", len(res.Failed)),
	)
	if job.Policy == FailFast && firstErr != nil {
		return res, firstErr
	}
	return res, nil
}
