package handler

import (
	"errors"
	"net/http"
	"strconv"

	"uniforme-api/internal/services"
	"uniforme-api/internal/transport/httpdto"
	uniforme_errors "uniforme-api/pkg/errors"
	"uniforme-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// multipartOverhead is the slack allowed on top of the file size for the
// multipart envelope (boundaries, part headers, other fields).
const multipartOverhead = 1 << 20

type AttachmentHandler struct {
	service  *services.AttachmentService
	logger   *logger.Logger
	maxBytes int64
}

func NewAttachmentHandler(service *services.AttachmentService, l *logger.Logger, maxBytes int64) *AttachmentHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &AttachmentHandler{service: service, logger: l, maxBytes: maxBytes}
}

func (h *AttachmentHandler) RequestUploadURL(c *gin.Context) {
	orderID, itemID, ok := parseOrderItem(c)
	if !ok {
		return
	}
	var req httpdto.UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	res, err := h.service.RequestUploadURL(c.Request.Context(), services.UploadURLInput{
		OrderID:     orderID,
		ItemID:      itemID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		h.writeError(c, "upload-url", err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadURLResponse{
		ObjectKey:    res.ObjectKey,
		UploadURL:    res.UploadURL,
		ExpiresInSec: res.ExpiresInSec,
		Headers:      res.Headers,
	}))
}

func (h *AttachmentHandler) ConfirmUpload(c *gin.Context) {
	orderID, itemID, ok := parseOrderItem(c)
	if !ok {
		return
	}
	var req httpdto.ConfirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	a, err := h.service.ConfirmUpload(c.Request.Context(), services.ConfirmInput{
		OrderID:      orderID,
		ItemID:       itemID,
		ObjectKey:    req.ObjectKey,
		OriginalName: req.OriginalName,
		ContentType:  req.ContentType,
		SizeBytes:    req.SizeBytes,
		Checksum:     req.Checksum,
		CreatedBy:    principalID(c),
	})
	if err != nil {
		h.writeError(c, "confirm", err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConfirmUploadResponse{
		AttachmentID: a.ID.String(),
		Status:       string(a.Status),
		Checksum:     a.Checksum,
	}))
}

func (h *AttachmentHandler) Upload(c *gin.Context) {
	orderID, itemID, ok := parseOrderItem(c)
	if !ok {
		return
	}

	limit := h.maxBytes + multipartOverhead
	if c.Request.ContentLength > limit {
		h.writeError(c, "upload", uniforme_errors.ErrTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, "upload", uniforme_errors.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("send the file in the 'file' field", "INVALID_REQUEST"))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Reject on declared metadata before opening the spooled part.
	if err := h.service.ValidatePolicy(fileHeader.Filename, contentType, fileHeader.Size); err != nil {
		h.writeError(c, "upload", err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable file part", "INVALID_REQUEST"))
		return
	}
	defer file.Close()

	a, err := h.service.UploadDirect(c.Request.Context(), services.DirectUploadInput{
		OrderID:     orderID,
		ItemID:      itemID,
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		SizeBytes:   fileHeader.Size,
		Body:        file,
		CreatedBy:   principalID(c),
	})
	if err != nil {
		h.writeError(c, "upload", err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadResponse{
		Attachment: httpdto.NewAttachmentDTO(a),
	}))
}

func (h *AttachmentHandler) DownloadURL(c *gin.Context) {
	orderID, itemID, ok := parseOrderItem(c)
	if !ok {
		return
	}
	res, err := h.service.ResolveDownloadURL(c.Request.Context(), orderID, itemID)
	if err != nil {
		h.writeError(c, "download-url", err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DownloadURLResponse{
		URL:          res.URL,
		ExpiresInSec: res.ExpiresInSec,
	}))
}

func (h *AttachmentHandler) List(c *gin.Context) {
	orderID, itemID, ok := parseOrderItem(c)
	if !ok {
		return
	}
	items, err := h.service.ListAttachments(c.Request.Context(), orderID, itemID)
	if err != nil {
		h.writeError(c, "list", err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListAttachmentsResponse{
		Attachments: httpdto.NewAttachmentDTOs(items),
	}))
}

func (h *AttachmentHandler) Delete(c *gin.Context) {
	orderID, itemID, ok := parseOrderItem(c)
	if !ok {
		return
	}
	attachmentID, err := uuid.Parse(c.Param("attachmentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid attachment id", "INVALID_REQUEST"))
		return
	}
	if err := h.service.DeleteAttachment(c.Request.Context(), orderID, itemID, attachmentID); err != nil {
		h.writeError(c, "delete", err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DeleteAttachmentResponse{OK: true}))
}

func parseOrderItem(c *gin.Context) (int64, int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid order id", "INVALID_REQUEST"))
		return 0, 0, false
	}
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid item id", "INVALID_REQUEST"))
		return 0, 0, false
	}
	return orderID, itemID, true
}

func principalID(c *gin.Context) *int64 {
	p, ok := services.PrincipalFromContext(c.Request.Context())
	if !ok {
		return nil
	}
	id := p.ID
	return &id
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty: echo the error text
}

var errorMappings = []errorMapping{
	{uniforme_errors.ErrInvalidInput, http.StatusBadRequest, "INVALID_REQUEST", ""},
	{uniforme_errors.ErrOwnership, http.StatusBadRequest, "OWNERSHIP_MISMATCH", "item does not belong to the given order"},
	{uniforme_errors.ErrKeyMismatch, http.StatusBadRequest, "KEY_MISMATCH", "objectKey does not match the given order/item"},
	{uniforme_errors.ErrUnsupportedMedia, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA", ""},
	{uniforme_errors.ErrTooLarge, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", ""},
	{uniforme_errors.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "no active attachment found"},
	{uniforme_errors.ErrNotUploaded, http.StatusConflict, "NOT_UPLOADED", "object was not found in storage"},
	{uniforme_errors.ErrKeyRecorded, http.StatusConflict, "KEY_ALREADY_RECORDED", "objectKey was already confirmed, request a new upload URL"},
	{uniforme_errors.ErrConflict, http.StatusConflict, "CONFLICT", "another upload for this item finished first, retry"},
	{uniforme_errors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"},
	{uniforme_errors.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded"},
	{uniforme_errors.ErrUpstreamStorage, http.StatusInternalServerError, "STORAGE_ERROR", "storage operation failed"},
}

func (h *AttachmentHandler) writeError(c *gin.Context, operation string, err error) {
	ctx := c.Request.Context()
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		if m.status >= http.StatusInternalServerError {
			h.logger.ErrorCtx(ctx, "attachment operation failed", zap.String("operation", operation), zap.Error(err))
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		c.JSON(m.status, httpdto.NewErrorResponse(msg, m.code))
		return
	}
	h.logger.ErrorCtx(ctx, "attachment operation failed", zap.String("operation", operation), zap.Error(err))
	c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL_ERROR"))
}
