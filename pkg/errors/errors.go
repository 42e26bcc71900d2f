package uniforme_errors

import (
	"errors"
)

// Common errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrTooLarge     = errors.New("file too large")
	ErrRateLimited  = errors.New("rate limited")
	ErrNotUploaded  = errors.New("file not uploaded")
)

// Attachment errors
var (
	ErrOwnership           = errors.New("item does not belong to order")
	ErrUnsupportedMedia    = errors.New("unsupported media type")
	ErrKeyMismatch         = errors.New("object key does not match order/item")
	ErrKeyRecorded         = errors.New("object key already recorded")
	ErrUpstreamStorage     = errors.New("object storage failure")
	ErrMetadataTransaction = errors.New("metadata transaction failed")
)
