package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"talentCorner/internal/api/middleware"
	"talentCorner/internal/errcode"
	"talentCorner/internal/ranking"
)

// RankingHeaders 与排名表格列一致。
var RankingHeaders = []string{
	"id", "rank", "first_name", "middle_name", "last_name", "email", "phone_no",
	"college", "university", "degree", "domain", "sub_domain", "marks",
	"completion_seconds", "day", "month", "year", "email_status",
}

var errShortlistFilter = errcode.NewValidation("Domain and SubDomain are required.")

// RankingHandler 负责测评提交、排名列表维护与机构的候选人筛选。
type RankingHandler struct {
	engine *ranking.Engine
}

func NewRankingHandler(engine *ranking.Engine) *RankingHandler {
	return &RankingHandler{engine: engine}
}

// Submit records a domain assessment. A repeated (email, sub-domain) is answered with 200 and
// success=false.
func (h *RankingHandler) Submit(c *gin.Context) {
	var req ranking.Submission
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	row, err := h.engine.Submit(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ranking.ErrDuplicateSubmission) {
			rejectOK(c, errcode.MessageOf(err))
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": row.ID, "rank": row.Rank})
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

func (h *RankingHandler) List(c *gin.Context) {
	page, err := h.engine.List(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "limit", ranking.DefaultPageSize))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"headers": RankingHeaders,
		"rows":    page.Rows,
		"total":   page.Total,
		"page":    page.Page,
		"limit":   page.Limit,
	})
}

func (h *RankingHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, errInvalidID)
		return
	}
	var patch ranking.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, bindError(err))
		return
	}
	row, err := h.engine.Update(c.Request.Context(), uint(id), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": row})
}

func (h *RankingHandler) Delete(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	n, err := h.engine.Delete(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

func (h *RankingHandler) DeleteAll(c *gin.Context) {
	n, err := h.engine.DeleteAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

type shortlistRequest struct {
	Domain    string `json:"domain"`
	SubDomain string `json:"subDomain"`
}

// Shortlist 返回分区前三名以及当前机构对其的联系状态。
func (h *RankingHandler) Shortlist(c *gin.Context) {
	var req shortlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	if isBlank(req.Domain) || isBlank(req.SubDomain) {
		respondError(c, errShortlistFilter)
		return
	}
	principal, found := middleware.PrincipalOf(c)
	if !found {
		unauthorized(c)
		return
	}

	entries, err := h.engine.Shortlist(c.Request.Context(), principal.Organization, req.Domain, req.SubDomain, ranking.ShortlistSize)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(entries) == 0 {
		rejectOK(c, "No candidate data found for the selected filters.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}
