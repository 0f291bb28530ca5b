package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"talentCorner/internal/errcode"
	"talentCorner/internal/importer"
	"talentCorner/internal/records"
)

var errNoFile = errcode.NewValidation("No file uploaded.")

// ImportHandler 负责 CSV 导入以及导入数据的维护。
type ImportHandler struct {
	pipeline *importer.Pipeline
	store    *records.Store
}

func NewImportHandler(pipeline *importer.Pipeline, store *records.Store) *ImportHandler {
	return &ImportHandler{pipeline: pipeline, store: store}
}

// UploadCSV imports the csvFile form field. Only append=false replaces existing rows.
func (h *ImportHandler) UploadCSV(c *gin.Context) {
	header, err := c.FormFile("csvFile")
	if err != nil {
		respondError(c, errNoFile)
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, errcode.Wrap(errcode.SystemError, "open upload", err))
		return
	}
	defer f.Close()

	res, err := h.pipeline.Import(c.Request.Context(), f, importer.Options{Append: c.Query("append") != "false"})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  fmt.Sprintf("%d records imported successfully.", res.Imported),
		"parsed":   res.Parsed,
		"imported": res.Imported,
		"skipped":  res.Skipped,
	})
}

func (h *ImportHandler) List(c *gin.Context) {
	listing, err := h.store.ListImported(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *ImportHandler) Modify(c *gin.Context) {
	var req records.ImportedEdit
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	if err := h.store.ModifyImported(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	ok(c, "Record updated successfully.")
}

type idsRequest struct {
	IDs []uint `json:"ids"`
}

func (h *ImportHandler) Delete(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	n, err := h.store.DeleteImported(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, fmt.Sprintf("%d records deleted successfully.", n))
}

// DeleteAll answers in plain text, as existing dashboard clients expect.
func (h *ImportHandler) DeleteAll(c *gin.Context) {
	if _, err := h.store.DeleteAllImported(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.String(http.StatusOK, "All data deleted successfully")
}
