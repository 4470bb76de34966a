package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-approval-api/internal/dto"
	"github.com/noah-isme/attendance-approval-api/internal/middleware"
	"github.com/noah-isme/attendance-approval-api/internal/models"
	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
	"github.com/noah-isme/attendance-approval-api/pkg/response"
)

type requestService interface {
	Submit(ctx context.Context, actor *models.JWTClaims, req dto.SubmitRequest, attachment *dto.AttachmentUpload) (*models.Request, error)
	Decide(ctx context.Context, actor *models.JWTClaims, id int64, req dto.DecisionRequest) (*dto.DecisionResult, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) (*dto.RequestListResponse, bool, error)
	Get(ctx context.Context, actor *models.JWTClaims, id int64) (*dto.RequestDetail, error)
	Queue(ctx context.Context, actor *models.JWTClaims) ([]models.Request, error)
	AttachmentURL(ctx context.Context, actor *models.JWTClaims, id int64) (*dto.AttachmentLink, error)
	OpenAttachment(ctx context.Context, actor *models.JWTClaims, id int64, token string) (*dto.AttachmentFile, error)
}

type exportService interface {
	Export(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery, format string) (*dto.ExportFile, error)
}

// RequestHandler exposes the attendance exception workflow.
type RequestHandler struct {
	service requestService
	exports exportService
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(service requestService, exports exportService) *RequestHandler {
	return &RequestHandler{service: service, exports: exports}
}

// Submit godoc
// @Summary Submit an attendance exception request
// @Tags Requests
// @Accept multipart/form-data
// @Produce json
// @Param subject formData string true "Subject"
// @Param description formData string true "Description"
// @Param start_time formData string true "Start of the absence window"
// @Param end_time formData string true "End of the absence window"
// @Param contact formData string true "Contact number"
// @Param attachment formData file false "Supporting document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	var upload *dto.AttachmentUpload
	fileHeader, err := c.FormFile("attachment")
	switch {
	case err == nil:
		src, openErr := fileHeader.Open()
		if openErr != nil {
			response.Error(c, appErrors.Wrap(openErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open attachment"))
			return
		}
		defer src.Close()
		upload = &dto.AttachmentUpload{Filename: fileHeader.Filename, Size: fileHeader.Size, Reader: src}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attachment upload"))
		return
	}

	created, err := h.service.Submit(c.Request.Context(), claims, req, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Decide godoc
// @Summary Approve or reject a request
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/decision [post]
func (h *RequestHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	result, err := h.service.Decide(c.Request.Context(), claims, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// List godoc
// @Summary List visible requests with status statistics
// @Tags Requests
// @Produce json
// @Param status query string false "all, pending, approved_by_coordinator, approved or rejected"
// @Param search query string false "Case-insensitive text search"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.RequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	result, cacheHit, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, result, middleware.ExtractMeta(c))
}

// Queue godoc
// @Summary Requests awaiting the caller
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/queue [get]
func (h *RequestHandler) Queue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.Queue(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(items))
	response.JSON(c, http.StatusOK, items, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Request detail with approvals
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), claims, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// Export godoc
// @Summary Export visible requests
// @Tags Requests
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Status filter"
// @Param search query string false "Search term"
// @Success 200 {file} binary
// @Router /requests/export [get]
func (h *RequestHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.RequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	file, err := h.exports.Export(c.Request.Context(), claims, query, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Data)
}

// AttachmentURL godoc
// @Summary Issue a signed attachment download URL
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/attachment-url [get]
func (h *RequestHandler) AttachmentURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	link, err := h.service.AttachmentURL(c.Request.Context(), claims, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Attachment godoc
// @Summary Download a request attachment via signed token
// @Tags Requests
// @Produce octet-stream
// @Param id path int true "Request ID"
// @Param token query string true "Signed token"
// @Param download query bool false "Force a download instead of inline display"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /requests/{id}/attachment [get]
func (h *RequestHandler) Attachment(c *gin.Context) {
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.OpenAttachment(c.Request.Context(), claimsFromContext(c), id, c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close() //nolint:errcheck

	disposition := "inline"
	if download, _ := strconv.ParseBool(c.Query("download")); download {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, file.Name))
	c.Header("Content-Type", file.ContentType)
	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, file.Name, file.ModTime, file.File)
}
