package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"talentCorner/internal/api/middleware"
	"talentCorner/internal/errcode"
	"talentCorner/internal/notify"
	"talentCorner/internal/tasks"
)

// Notifier runs notification campaigns in the request.
type Notifier interface {
	Run(ctx context.Context, campaign string, req notify.Request) (notify.Result, error)
	NotifyCandidateForOrg(ctx context.Context, org notify.Org, c notify.Contact) (bool, error)
}

// Enqueuer hands campaigns to the worker; *asynq.Client satisfies it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NotifyHandler 负责批量通知与机构单独联系候选人。
type NotifyHandler struct {
	notifier Notifier
	queue    Enqueuer
}

// NewNotifyHandler builds the handler; a nil queue disables ?async=true.
func NewNotifyHandler(notifier Notifier, queue Enqueuer) *NotifyHandler {
	return &NotifyHandler{notifier: notifier, queue: queue}
}

// InviteImported emails the form link to imported contacts not yet notified.
func (h *NotifyHandler) InviteImported(c *gin.Context) {
	h.bulk(c, notify.CampaignInvite, nil)
}

// InviteDetails emails the assessment link to intake-form candidates not yet notified.
func (h *NotifyHandler) InviteDetails(c *gin.Context) {
	h.bulk(c, notify.CampaignEvaluation, nil)
}

// NotifySelected emails the chosen ranking rows; failed recipients are listed in the answer.
func (h *NotifyHandler) NotifySelected(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	if len(req.IDs) == 0 {
		respondError(c, notify.ErrNoIDs)
		return
	}
	h.bulk(c, notify.CampaignSelection, req.IDs)
}

func (h *NotifyHandler) bulk(c *gin.Context, campaign string, ids []uint) {
	principal, found := middleware.PrincipalOf(c)
	if !found {
		unauthorized(c)
		return
	}
	req := notify.Request{
		Org:           notify.Org{Name: principal.Organization, Email: principal.Email},
		IDs:           ids,
		CorrelationID: middleware.GetCorrelationID(c),
	}

	if c.Query("async") == "true" {
		h.enqueue(c, campaign, req)
		return
	}

	res, err := h.notifier.Run(c.Request.Context(), campaign, req)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Total == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "No new candidates found.", "sent": 0})
		return
	}

	body := gin.H{"success": true, "sent": res.Sent, "total": res.Total}
	if campaign == notify.CampaignSelection {
		body["failed"] = res.Failed
		body["message"] = "Selection emails processed."
	} else {
		body["message"] = "Emails sent successfully to all candidates."
	}
	c.JSON(http.StatusOK, body)
}

func (h *NotifyHandler) enqueue(c *gin.Context, campaign string, req notify.Request) {
	if h.queue == nil {
		respondError(c, errcode.NewValidation("Async delivery is not available."))
		return
	}
	task, err := tasks.NewNotifyCampaignTask(tasks.NotifyCampaignPayload{
		Campaign:      campaign,
		OrgName:       req.Org.Name,
		OrgEmail:      req.Org.Email,
		IDs:           req.IDs,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		respondError(c, errcode.Wrap(errcode.SystemError, "build notify task", err))
		return
	}
	info, err := h.queue.Enqueue(task)
	if err != nil {
		respondError(c, errcode.Wrap(errcode.SystemError, "enqueue notify task", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":        true,
		"message":        "Notification campaign queued.",
		"task_id":        info.ID,
		"correlation_id": req.CorrelationID,
	})
}

// NotifyCandidate 以机构名义联系单个候选人；已联系过则不重复发送。
func (h *NotifyHandler) NotifyCandidate(c *gin.Context) {
	var contact notify.Contact
	if err := c.ShouldBindJSON(&contact); err != nil {
		respondError(c, bindError(err))
		return
	}
	principal, found := middleware.PrincipalOf(c)
	if !found {
		unauthorized(c)
		return
	}

	org := notify.Org{Name: principal.Organization, Email: principal.Email}
	alreadySent, err := h.notifier.NotifyCandidateForOrg(c.Request.Context(), org, contact)
	if err != nil {
		respondError(c, err)
		return
	}
	if alreadySent {
		ok(c, "Email already sent.")
		return
	}
	ok(c, "Email sent successfully.")
}
