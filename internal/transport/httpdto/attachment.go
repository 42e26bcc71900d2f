package httpdto

import (
	"time"

	"uniforme-api/internal/domain/attachment"
)

// UploadURLRequest is used for POST .../cdr/upload-url
type UploadURLRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	SizeBytes   int64  `json:"sizeBytes" binding:"required,gt=0"`
}

// UploadURLResponse carries the presigned PUT and the key to confirm later
type UploadURLResponse struct {
	ObjectKey    string            `json:"objectKey"`
	UploadURL    string            `json:"uploadUrl"`
	ExpiresInSec int64             `json:"expiresInSec"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// ConfirmUploadRequest is used for POST .../cdr/confirm
type ConfirmUploadRequest struct {
	ObjectKey    string `json:"objectKey" binding:"required"`
	SizeBytes    int64  `json:"sizeBytes" binding:"required,gt=0"`
	OriginalName string `json:"originalName" binding:"required"`
	ContentType  string `json:"contentType" binding:"required"`
	Checksum     string `json:"checksum,omitempty"`
}

type ConfirmUploadResponse struct {
	AttachmentID string  `json:"attachmentId"`
	Status       string  `json:"status"`
	Checksum     *string `json:"checksum"`
}

// UploadResponse is returned by the multipart POST .../cdr/upload
type UploadResponse struct {
	Attachment AttachmentDTO `json:"attachment"`
}

type DownloadURLResponse struct {
	URL          string `json:"url"`
	ExpiresInSec int64  `json:"expiresInSec"`
}

type ListAttachmentsResponse struct {
	Attachments []AttachmentDTO `json:"attachments"`
}

type DeleteAttachmentResponse struct {
	OK bool `json:"ok"`
}

// AttachmentDTO represents an attachment version in API responses
type AttachmentDTO struct {
	ID           string  `json:"id"`
	OrderID      int64   `json:"orderId"`
	ItemID       int64   `json:"itemId"`
	ObjectKey    string  `json:"objectKey"`
	OriginalName string  `json:"originalName"`
	ContentType  string  `json:"contentType"`
	SizeBytes    int64   `json:"sizeBytes"`
	Checksum     *string `json:"checksum,omitempty"`
	Status       string  `json:"status"`
	Active       bool    `json:"active"`
	CreatedBy    *int64  `json:"createdBy,omitempty"`
	CreatedAt    string  `json:"createdAt"`
	DeletedAt    string  `json:"deletedAt,omitempty"`
}

func NewAttachmentDTO(a attachment.Attachment) AttachmentDTO {
	dto := AttachmentDTO{
		ID:           a.ID.String(),
		OrderID:      a.OrderID,
		ItemID:       a.ItemID,
		ObjectKey:    a.ObjectKey,
		OriginalName: a.OriginalName,
		ContentType:  a.ContentType,
		SizeBytes:    a.SizeBytes,
		Checksum:     a.Checksum,
		Status:       string(a.Status),
		Active:       a.IsActive(),
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.DeletedAt != nil {
		dto.DeletedAt = a.DeletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func NewAttachmentDTOs(items []attachment.Attachment) []AttachmentDTO {
	out := make([]AttachmentDTO, 0, len(items))
	for _, a := range items {
		out = append(out, NewAttachmentDTO(a))
	}
	return out
}
