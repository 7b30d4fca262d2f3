// Package handler provides HTTP handlers for the papercite service.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/papercite/papercite/internal/papercite/biz"
)

// askTimeout bounds one question end to end: embedding, search,
// completion and verification.
const askTimeout = 60 * time.Second

// maxUploadSize caps uploaded PDF size at 64 MiB.
const maxUploadSize = 64 << 20

// Handler handles papercite HTTP requests.
type Handler struct {
	service biz.Service
}

// NewHandler creates a Handler.
func NewHandler(service biz.Service) *Handler {
	return &Handler{service: service}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AskRequest is a question against the corpus. Every field besides the
// question is an optional override of the configured defaults.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	// Document restricts retrieval to one document.
	Document string `json:"document,omitempty"`
	// TopK caps the number of retrieved chunks.
	TopK int `json:"top_k,omitempty"`
	// MinScore sets the relevance threshold.
	MinScore float64 `json:"min_score,omitempty"`
	// VerifyQuotes toggles quote verification. Defaults to true.
	VerifyQuotes *bool `json:"verify_quotes,omitempty"`
}

// Ask answers a question with verified citations.
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), askTimeout)
	defer cancel()

	opts := &biz.AskOptions{
		Document:   req.Document,
		TopK:       req.TopK,
		MinScore:   req.MinScore,
		SkipVerify: req.VerifyQuotes != nil && !*req.VerifyQuotes,
	}
	result, err := h.service.Ask(ctx, req.Question, opts)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    408,
				Message: "Question timed out. Please try again or simplify the question.",
			})
			return
		}
		if errors.Is(err, biz.ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// UploadDocument ingests a PDF uploaded as multipart form data under the
// "file" field. The document ID is the uploaded filename.
func (h *Handler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "missing file field: " + err.Error()})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Code: 413, Message: "file exceeds upload size limit"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	docID := filepath.Base(fileHeader.Filename)
	chunks, err := h.service.IngestPDF(c.Request.Context(), docID, data)
	if err != nil {
		var exErr *biz.ExtractionError
		if errors.As(err, &exErr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Code: 422, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    0,
		Message: "document ingested",
		Data:    gin.H{"document": docID, "chunks": chunks},
	})
}

// PageRequest is one page of pre-extracted text.
type PageRequest struct {
	Number int    `json:"number" binding:"required"`
	Text   string `json:"text"`
}

// PutDocumentRequest replaces a document with pre-extracted page text.
type PutDocumentRequest struct {
	Pages []PageRequest `json:"pages" binding:"required"`
}

// PutDocument ingests pre-extracted page text for the document named in
// the URL, replacing any previous version.
func (h *Handler) PutDocument(c *gin.Context) {
	docID := c.Param("id")

	var req PutDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	pages := make([]biz.Page, 0, len(req.Pages))
	for _, p := range req.Pages {
		pages = append(pages, biz.Page{Number: p.Number, Text: p.Text})
	}

	chunks, err := h.service.Ingest(c.Request.Context(), docID, pages)
	if err != nil {
		if errors.Is(err, biz.ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    0,
		Message: "document ingested",
		Data:    gin.H{"document": docID, "chunks": chunks},
	})
}

// DeleteDocument removes a document and every chunk derived from it.
func (h *Handler) DeleteDocument(c *gin.Context) {
	docID := c.Param("id")

	if err := h.service.Remove(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "document removed", Data: gin.H{"document": docID}})
}

// ListDocuments returns the indexed document ids.
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.service.ListDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: gin.H{"documents": docs}})
}

// Stats returns corpus statistics.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}
