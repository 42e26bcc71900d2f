package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"uniforme-api/config"
	"uniforme-api/internal/domain/attachment"
	"uniforme-api/internal/events"
	"uniforme-api/internal/metrics"
	"uniforme-api/internal/repository"
	uniforme_errors "uniforme-api/pkg/errors"
	"uniforme-api/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ObjectStore is the transport the service needs from the bucket.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, map[string]string, error)
	PresignGet(ctx context.Context, key, responseContentType, responseFilename string, ttl time.Duration) (string, error)
	Put(ctx context.Context, key string, body io.Reader, sizeBytes int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// AttachmentNotifier is told about committed attachment changes.
type AttachmentNotifier interface {
	Notify(ctx context.Context, eventType string, a attachment.Attachment) error
}

type AttachmentService struct {
	items    repository.OrderItemRepository
	repo     repository.AttachmentRepository
	store    ObjectStore
	policy   config.AttachmentConfig
	notifier AttachmentNotifier
	observer metrics.Observer
	logger   *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

type AttachmentOption func(*AttachmentService)

func WithNotifier(n AttachmentNotifier) AttachmentOption {
	return func(s *AttachmentService) { s.notifier = n }
}

func WithObserver(o metrics.Observer) AttachmentOption {
	return func(s *AttachmentService) { s.observer = o }
}

func WithLogger(l *logger.Logger) AttachmentOption {
	return func(s *AttachmentService) { s.logger = l }
}

func WithClock(now func() time.Time) AttachmentOption {
	return func(s *AttachmentService) { s.now = now }
}

func NewAttachmentService(items repository.OrderItemRepository, repo repository.AttachmentRepository, store ObjectStore, policy config.AttachmentConfig, opts ...AttachmentOption) *AttachmentService {
	s := &AttachmentService{
		items:    items,
		repo:     repo,
		store:    store,
		policy:   normalizePolicy(policy),
		observer: metrics.NopObserver{},
		logger:   logger.NewNop(),
		tracer:   otel.Tracer("uniforme-api/attachments"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizePolicy(p config.AttachmentConfig) config.AttachmentConfig {
	ext := strings.ToLower(strings.TrimSpace(p.Extension))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	p.Extension = ext

	types := make([]string, 0, len(p.ContentTypes))
	for _, ct := range p.ContentTypes {
		if ct = normalizeContentType(ct); ct != "" {
			types = append(types, ct)
		}
	}
	p.ContentTypes = types
	return p
}

type UploadURLInput struct {
	OrderID     int64
	ItemID      int64
	FileName    string
	ContentType string
	SizeBytes   int64
}

type UploadURLResult struct {
	ObjectKey    string
	UploadURL    string
	ExpiresInSec int64
	Headers      map[string]string
}

type ConfirmInput struct {
	OrderID      int64
	ItemID       int64
	ObjectKey    string
	OriginalName string
	ContentType  string
	SizeBytes    int64
	Checksum     string
	CreatedBy    *int64
}

type DirectUploadInput struct {
	OrderID     int64
	ItemID      int64
	FileName    string
	ContentType string
	SizeBytes   int64
	Body        io.Reader
	CreatedBy   *int64
}

type DownloadURLResult struct {
	URL          string
	ExpiresInSec int64
	Attachment   attachment.Attachment
}

// ItemKeyPrefix is the folder every layout file of an item lives under. Key
// construction and the confirm-time ownership check both go through here.
func ItemKeyPrefix(orderID, itemID int64) string {
	return fmt.Sprintf("orders/%d/items/%d/layout/", orderID, itemID)
}

func (s *AttachmentService) ValidateOwnership(ctx context.Context, orderID, itemID int64) error {
	if orderID <= 0 || itemID <= 0 {
		return fmt.Errorf("%w: order and item ids must be positive", uniforme_errors.ErrInvalidInput)
	}
	ok, err := s.items.BelongsToOrder(ctx, orderID, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return uniforme_errors.ErrOwnership
	}
	return nil
}

// ValidatePolicy rejects a declared file before any network call is made.
func (s *AttachmentService) ValidatePolicy(name, contentType string, sizeBytes int64) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(contentType) == "" {
		return fmt.Errorf("%w: file name and content type are required", uniforme_errors.ErrInvalidInput)
	}
	if sizeBytes <= 0 {
		return fmt.Errorf("%w: size must be positive", uniforme_errors.ErrInvalidInput)
	}
	if strings.ToLower(path.Ext(name)) != s.policy.Extension {
		return fmt.Errorf("%w: only %s files are accepted", uniforme_errors.ErrUnsupportedMedia, s.policy.Extension)
	}
	if !s.contentTypeAllowed(contentType) {
		return fmt.Errorf("%w: content type %q is not accepted", uniforme_errors.ErrUnsupportedMedia, contentType)
	}
	if sizeBytes > s.policy.MaxBytes {
		return fmt.Errorf("%w: limit is %d bytes", uniforme_errors.ErrTooLarge, s.policy.MaxBytes)
	}
	return nil
}

func (s *AttachmentService) contentTypeAllowed(contentType string) bool {
	ct := normalizeContentType(contentType)
	for _, allowed := range s.policy.ContentTypes {
		if ct == allowed {
			return true
		}
	}
	return false
}

func normalizeContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// BuildObjectKey returns a fresh, collision-free key under the item prefix.
func (s *AttachmentService) BuildObjectKey(orderID, itemID int64, originalName string) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate key token: %w", err)
	}
	return fmt.Sprintf("%s%d_%s_%s%s",
		ItemKeyPrefix(orderID, itemID),
		s.now().UnixMilli(),
		token,
		sanitizeBaseName(originalName),
		s.policy.Extension,
	), nil
}

var (
	unsafeNameChars = regexp.MustCompile(`[^\w.\-]+`)
	dotRuns         = regexp.MustCompile(`\.{2,}`)
)

const maxBaseNameLen = 100

func sanitizeBaseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := path.Base(name)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = dotRuns.ReplaceAllString(base, ".")
	base = strings.Trim(base, "._")
	if len(base) > maxBaseNameLen {
		base = strings.TrimRight(base[:maxBaseNameLen], "._")
	}
	if base == "" {
		return "layout"
	}
	return base
}

func randomToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RequestUploadURL presigns a direct PUT. It never touches the metadata store.
func (s *AttachmentService) RequestUploadURL(ctx context.Context, in UploadURLInput) (res UploadURLResult, err error) {
	ctx, done := s.begin(ctx, "upload_url")
	defer done(&err)

	if err := s.ValidatePolicy(in.FileName, in.ContentType, in.SizeBytes); err != nil {
		return UploadURLResult{}, err
	}
	if err := s.ValidateOwnership(ctx, in.OrderID, in.ItemID); err != nil {
		return UploadURLResult{}, err
	}

	key, err := s.BuildObjectKey(in.OrderID, in.ItemID, in.FileName)
	if err != nil {
		return UploadURLResult{}, err
	}

	ttl := s.policy.UploadURLTTL
	url, headers, err := s.store.PresignPut(ctx, key, strings.TrimSpace(in.ContentType), ttl)
	if err != nil {
		s.observer.RecordStorageFailure("presign_put")
		return UploadURLResult{}, fmt.Errorf("%w: %v", uniforme_errors.ErrUpstreamStorage, err)
	}

	return UploadURLResult{
		ObjectKey:    key,
		UploadURL:    url,
		ExpiresInSec: int64(ttl / time.Second),
		Headers:      headers,
	}, nil
}

// ConfirmUpload records an object the caller uploaded through a presigned URL.
// The declared metadata is validated again; nothing from the earlier request is trusted.
func (s *AttachmentService) ConfirmUpload(ctx context.Context, in ConfirmInput) (a attachment.Attachment, err error) {
	ctx, done := s.begin(ctx, "confirm")
	defer done(&err)

	if strings.TrimSpace(in.ObjectKey) == "" {
		return attachment.Attachment{}, fmt.Errorf("%w: object key is required", uniforme_errors.ErrInvalidInput)
	}
	if err := s.ValidatePolicy(in.OriginalName, in.ContentType, in.SizeBytes); err != nil {
		return attachment.Attachment{}, err
	}
	if err := s.ValidateOwnership(ctx, in.OrderID, in.ItemID); err != nil {
		return attachment.Attachment{}, err
	}
	if !keyBelongsToItem(in.ObjectKey, in.OrderID, in.ItemID) {
		return attachment.Attachment{}, uniforme_errors.ErrKeyMismatch
	}

	if s.policy.VerifyOnConfirm {
		exists, err := s.store.Exists(ctx, in.ObjectKey)
		if err != nil {
			s.observer.RecordStorageFailure("head")
			return attachment.Attachment{}, fmt.Errorf("%w: %v", uniforme_errors.ErrUpstreamStorage, err)
		}
		if !exists {
			return attachment.Attachment{}, uniforme_errors.ErrNotUploaded
		}
	}

	a = attachment.Attachment{
		OrderID:      in.OrderID,
		ItemID:       in.ItemID,
		ObjectKey:    in.ObjectKey,
		OriginalName: strings.TrimSpace(in.OriginalName),
		ContentType:  strings.TrimSpace(in.ContentType),
		SizeBytes:    in.SizeBytes,
		CreatedBy:    in.CreatedBy,
	}
	if checksum := strings.TrimSpace(in.Checksum); checksum != "" {
		a.Checksum = &checksum
	}
	if err := s.commit(ctx, &a); err != nil {
		return attachment.Attachment{}, err
	}
	return a, nil
}

func keyBelongsToItem(key string, orderID, itemID int64) bool {
	prefix := ItemKeyPrefix(orderID, itemID)
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	rest := strings.TrimPrefix(key, prefix)
	// The remainder is a single path segment.
	return rest != "" && rest != "." && rest != ".." && !strings.ContainsAny(rest, `/\`)
}

// UploadDirect writes the body to the store itself, then records it exactly
// like ConfirmUpload. A metadata failure after a successful PUT leaves an orphan.
func (s *AttachmentService) UploadDirect(ctx context.Context, in DirectUploadInput) (a attachment.Attachment, err error) {
	ctx, done := s.begin(ctx, "upload")
	defer done(&err)

	if err := s.ValidatePolicy(in.FileName, in.ContentType, in.SizeBytes); err != nil {
		return attachment.Attachment{}, err
	}
	if in.Body == nil {
		return attachment.Attachment{}, fmt.Errorf("%w: file body is required", uniforme_errors.ErrInvalidInput)
	}
	if err := s.ValidateOwnership(ctx, in.OrderID, in.ItemID); err != nil {
		return attachment.Attachment{}, err
	}

	key, err := s.BuildObjectKey(in.OrderID, in.ItemID, in.FileName)
	if err != nil {
		return attachment.Attachment{}, err
	}
	contentType := strings.TrimSpace(in.ContentType)
	if err := s.store.Put(ctx, key, in.Body, in.SizeBytes, contentType); err != nil {
		s.observer.RecordStorageFailure("put")
		return attachment.Attachment{}, fmt.Errorf("%w: %v", uniforme_errors.ErrUpstreamStorage, err)
	}

	a = attachment.Attachment{
		OrderID:      in.OrderID,
		ItemID:       in.ItemID,
		ObjectKey:    key,
		OriginalName: strings.TrimSpace(in.FileName),
		ContentType:  contentType,
		SizeBytes:    in.SizeBytes,
		CreatedBy:    in.CreatedBy,
	}
	if err := s.commit(ctx, &a); err != nil {
		s.logger.WarnCtx(ctx, "uploaded object left without metadata",
			zap.String("object_key", key), zap.Error(err))
		return attachment.Attachment{}, err
	}
	return a, nil
}

// commit runs the supersede-then-insert transition and announces the result.
func (s *AttachmentService) commit(ctx context.Context, a *attachment.Attachment) error {
	a.CreatedAt = s.now().UTC()
	if err := s.repo.Replace(ctx, a); err != nil {
		return err
	}
	s.observer.RecordUploadedBytes(a.SizeBytes)
	s.logger.InfoCtx(ctx, "attachment committed",
		zap.String("attachment_id", a.ID.String()),
		zap.Int64("order_id", a.OrderID),
		zap.Int64("item_id", a.ItemID),
		zap.String("object_key", a.ObjectKey))
	s.notify(ctx, events.EventTypeAttachmentUploaded, *a)
	return nil
}

func (s *AttachmentService) ResolveDownloadURL(ctx context.Context, orderID, itemID int64) (res DownloadURLResult, err error) {
	ctx, done := s.begin(ctx, "download_url")
	defer done(&err)

	if err := s.ValidateOwnership(ctx, orderID, itemID); err != nil {
		return DownloadURLResult{}, err
	}
	a, err := s.repo.GetActiveByItem(ctx, itemID)
	if err != nil {
		return DownloadURLResult{}, err
	}

	ttl := s.policy.DownloadURLTTL
	url, err := s.store.PresignGet(ctx, a.ObjectKey, a.ContentType, a.OriginalName, ttl)
	if err != nil {
		s.observer.RecordStorageFailure("presign_get")
		return DownloadURLResult{}, fmt.Errorf("%w: %v", uniforme_errors.ErrUpstreamStorage, err)
	}
	return DownloadURLResult{
		URL:          url,
		ExpiresInSec: int64(ttl / time.Second),
		Attachment:   a,
	}, nil
}

// ListAttachments returns every version recorded for the item, newest first.
func (s *AttachmentService) ListAttachments(ctx context.Context, orderID, itemID int64) (items []attachment.Attachment, err error) {
	ctx, done := s.begin(ctx, "list")
	defer done(&err)

	if err := s.ValidateOwnership(ctx, orderID, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListByItem(ctx, itemID)
}

// DeleteAttachment soft-deletes the active row under the item lock, then
// removes its blob best effort. A failed blob delete leaves an orphan.
func (s *AttachmentService) DeleteAttachment(ctx context.Context, orderID, itemID int64, attachmentID uuid.UUID) (err error) {
	ctx, done := s.begin(ctx, "delete")
	defer done(&err)

	if attachmentID == uuid.Nil {
		return fmt.Errorf("%w: attachment id is required", uniforme_errors.ErrInvalidInput)
	}
	if err := s.ValidateOwnership(ctx, orderID, itemID); err != nil {
		return err
	}

	a, err := s.repo.SoftDelete(ctx, orderID, itemID, attachmentID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, a.ObjectKey); err != nil {
		s.observer.RecordStorageFailure("delete")
		s.logger.WarnCtx(ctx, "object delete failed, blob left orphaned",
			zap.String("attachment_id", a.ID.String()),
			zap.String("object_key", a.ObjectKey),
			zap.Error(err))
	}
	s.notify(ctx, events.EventTypeAttachmentDeleted, a)
	return nil
}

func (s *AttachmentService) notify(ctx context.Context, eventType string, a attachment.Attachment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, eventType, a); err != nil {
		s.logger.WarnCtx(ctx, "attachment event not published",
			zap.String("event_type", eventType),
			zap.String("attachment_id", a.ID.String()),
			zap.Error(err))
	}
}

// begin opens a span for operation and returns the func that closes it and
// records the outcome.
func (s *AttachmentService) begin(ctx context.Context, operation string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "attachment."+operation)
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, metrics.Outcome(err))
		}
		span.End()
		s.observer.RecordOperation(operation, time.Since(start), err)
	}
}
