package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentcorner",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "CSV 导入行数，按是否被接受区分。",
		},
		[]string{"result"},
	)

	rankingSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentcorner",
			Subsystem: "ranking",
			Name:      "submissions_total",
			Help:      "测评提交次数。",
		},
		[]string{"result"},
	)

	notifySendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentcorner",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "通知邮件最终投递结果。",
		},
		[]string{"campaign", "result"},
	)

	notifyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "talentcorner",
			Subsystem: "notify",
			Name:      "send_attempts_total",
			Help:      "SMTP 发送尝试次数（含重试）。",
		},
		[]string{"result"},
	)
)

// ObserveImport 记录一次导入的接受与跳过行数。
func ObserveImport(accepted, skipped int) {
	importRowsTotal.WithLabelValues("accepted").Add(float64(accepted))
	importRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveSubmission records an assessment submission outcome ("accepted", "duplicate", "error").
func ObserveSubmission(result string) {
	rankingSubmissionsTotal.WithLabelValues(result).Inc()
}

// ObserveDelivery records the final outcome of one notification email.
func ObserveDelivery(campaign string, ok bool) {
	notifySendsTotal.WithLabelValues(campaign, resultLabel(ok)).Inc()
}

// ObserveAttempt records a single SMTP send attempt.
func ObserveAttempt(ok bool) {
	notifyAttemptsTotal.WithLabelValues(resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
