package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"talentCorner/internal/api/middleware"
	"talentCorner/internal/errcode"
	"talentCorner/internal/report"
)

var errYearFilter = errcode.NewValidation("filter must be a year.")

// ReportHandler 暴露只读统计接口。
type ReportHandler struct {
	reporter *report.Reporter
}

func NewReportHandler(reporter *report.Reporter) *ReportHandler {
	return &ReportHandler{reporter: reporter}
}

// yearFilter parses ?filter; absent or empty means all years.
func yearFilter(c *gin.Context) (*int, error) {
	raw := strings.TrimSpace(c.Query("filter"))
	if raw == "" {
		return nil, nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errYearFilter
	}
	return &year, nil
}

func (h *ReportHandler) ByYear(c *gin.Context) {
	rows, err := h.reporter.ByYear(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *ReportHandler) ByDomain(c *gin.Context) {
	year, err := yearFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.reporter.ByDomain(c.Request.Context(), year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *ReportHandler) BySubDomain(c *gin.Context) {
	year, err := yearFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.reporter.BySubDomain(c.Request.Context(), year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *ReportHandler) OrgEmailCounts(c *gin.Context) {
	rows, err := h.reporter.OrgEmailCounts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rows})
}

// Dashboard 返回当前机构的仪表盘数据。
func (h *ReportHandler) Dashboard(c *gin.Context) {
	principal, found := middleware.PrincipalOf(c)
	if !found {
		unauthorized(c)
		return
	}
	d, err := h.reporter.Dashboard(c.Request.Context(), principal.Organization)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
