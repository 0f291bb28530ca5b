package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"talentCorner/internal/errcode"
	"talentCorner/internal/records"
	"talentCorner/internal/storage"
)

var errInvalidID = errcode.NewValidation("Invalid id.")

// CandidateHandler 负责候选人信息表单以及简历访问。
type CandidateHandler struct {
	store          *records.Store
	local          *storage.LocalStore
	maxUploadBytes int64
}

// NewCandidateHandler wires the intake form. local is nil unless resumes live on the local disk.
func NewCandidateHandler(store *records.Store, local *storage.LocalStore, maxUploadMB int) *CandidateHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	return &CandidateHandler{store: store, local: local, maxUploadBytes: int64(maxUploadMB) << 20}
}

// Submit 处理公开的候选人信息表单（multipart，可附带 resume 文件）。
func (h *CandidateHandler) Submit(c *gin.Context) {
	var form records.IntakeForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, bindError(err))
		return
	}

	var upload *records.Upload
	if header, err := c.FormFile("resume"); err == nil {
		if header.Size > h.maxUploadBytes {
			respondError(c, errcode.NewValidation(fmt.Sprintf("Resume exceeds %d MB.", h.maxUploadBytes>>20)))
			return
		}
		f, err := header.Open()
		if err != nil {
			respondError(c, errcode.Wrap(errcode.SystemError, "open resume", err))
			return
		}
		defer f.Close()
		upload = &records.Upload{
			Filename:    header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Body:        f,
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		respondError(c, errcode.Wrap(errcode.Validation, "Invalid multipart form.", err))
		return
	}

	if _, err := h.store.Submit(c.Request.Context(), form, upload); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CandidateHandler) List(c *gin.Context) {
	listing, err := h.store.ListDetails(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *CandidateHandler) Modify(c *gin.Context) {
	var req records.DetailEdit
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	if err := h.store.ModifyDetail(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	ok(c, "Record updated successfully.")
}

func (h *CandidateHandler) Delete(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	n, err := h.store.DeleteDetails(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, fmt.Sprintf("%d records deleted successfully.", n))
}

func (h *CandidateHandler) DeleteAll(c *gin.Context) {
	n, err := h.store.DeleteAllDetails(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, fmt.Sprintf("All candidate_details deleted (%d rows).", n))
}

// ResumeURL returns a link to the candidate's resume.
func (h *CandidateHandler) ResumeURL(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, errInvalidID)
		return
	}
	u, err := h.store.ResumeURL(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

// ServeFile streams a resume kept in local storage.
func (h *CandidateHandler) ServeFile(c *gin.Context) {
	if h.local == nil {
		respondError(c, errcode.NewNotFound("File not found."))
		return
	}
	p, err := h.local.Path(strings.TrimPrefix(c.Param("key"), "/"))
	if err != nil {
		respondError(c, errcode.NewNotFound("File not found."))
		return
	}
	c.File(p)
}
