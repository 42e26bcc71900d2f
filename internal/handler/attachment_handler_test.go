package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"uniforme-api/config"
	"uniforme-api/internal/repository"
	"uniforme-api/internal/services"
	"uniforme-api/internal/transport/httpdto"
	uniforme_errors "uniforme-api/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) PresignPut(_ context.Context, key, contentType string, _ time.Duration) (string, map[string]string, error) {
	return "https://bucket.example/" + key, map[string]string{"Content-Type": contentType}, nil
}

func (m *memoryStore) PresignGet(_ context.Context, key, _, _ string, _ time.Duration) (string, error) {
	return "https://bucket.example/" + key + "?signed", nil
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

const testMaxBytes = 1024

func setupRouter(t *testing.T) (*gin.Engine, *memoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := repository.SetupTestDB(t)
	repository.CreateTestItem(t, db, 7, 42)

	store := &memoryStore{objects: map[string][]byte{}}
	svc := services.NewAttachmentService(
		repository.NewOrderItemRepository(db),
		repository.NewAttachmentRepository(db),
		store,
		config.AttachmentConfig{
			MaxBytes:       testMaxBytes,
			Extension:      ".cdr",
			ContentTypes:   []string{"application/x-coreldraw", "application/octet-stream"},
			UploadURLTTL:   15 * time.Minute,
			DownloadURLTTL: 5 * time.Minute,
		},
	)
	h := NewAttachmentHandler(svc, nil, testMaxBytes)

	r := gin.New()
	items := r.Group("/v1/orders/:orderId/items/:itemId")
	items.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(services.WithPrincipal(c.Request.Context(), services.Principal{ID: 3}))
		c.Next()
	})
	items.POST("/cdr/upload-url", h.RequestUploadURL)
	items.POST("/cdr/confirm", h.ConfirmUpload)
	items.POST("/cdr/upload", h.Upload)
	items.GET("/cdr/download-url", h.DownloadURL)
	items.GET("/cdr/list", h.List)
	items.DELETE("/files/:attachmentId", h.Delete)
	return r, store
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) httpdto.Response[T] {
	t.Helper()
	var resp httpdto.Response[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadURLThenConfirmThenDownload(t *testing.T) {
	r, _ := setupRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/orders/7/items/42/cdr/upload-url", httpdto.UploadURLRequest{
		FileName: "Modelo Camisa Azul.cdr", ContentType: "application/x-coreldraw", SizeBytes: 512,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	upload := decode[httpdto.UploadURLResponse](t, w)
	require.True(t, upload.Success)
	require.True(t, strings.HasPrefix(upload.Data.ObjectKey, "orders/7/items/42/layout/"))
	require.Equal(t, int64(900), upload.Data.ExpiresInSec)

	w = doJSON(t, r, http.MethodPost, "/v1/orders/7/items/42/cdr/confirm", httpdto.ConfirmUploadRequest{
		ObjectKey: upload.Data.ObjectKey, OriginalName: "Modelo Camisa Azul.cdr",
		ContentType: "application/x-coreldraw", SizeBytes: 512, Checksum: "deadbeef",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	confirm := decode[httpdto.ConfirmUploadResponse](t, w)
	require.NotEmpty(t, confirm.Data.AttachmentID)
	require.Equal(t, "uploaded", confirm.Data.Status)
	require.NotNil(t, confirm.Data.Checksum)

	w = doJSON(t, r, http.MethodGet, "/v1/orders/7/items/42/cdr/download-url", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	download := decode[httpdto.DownloadURLResponse](t, w)
	require.Contains(t, download.Data.URL, upload.Data.ObjectKey)
	require.Equal(t, int64(300), download.Data.ExpiresInSec)
}

func TestErrorStatusMapping(t *testing.T) {
	r, _ := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"bad order id", http.MethodGet, "/v1/orders/abc/items/42/cdr/list", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing fields", http.MethodPost, "/v1/orders/7/items/42/cdr/upload-url", map[string]string{"fileName": "a.cdr"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"wrong extension", http.MethodPost, "/v1/orders/7/items/42/cdr/upload-url",
			httpdto.UploadURLRequest{FileName: "a.pdf", ContentType: "application/x-coreldraw", SizeBytes: 10}, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA"},
		{"too large", http.MethodPost, "/v1/orders/7/items/42/cdr/upload-url",
			httpdto.UploadURLRequest{FileName: "a.cdr", ContentType: "application/x-coreldraw", SizeBytes: testMaxBytes + 1}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"foreign item", http.MethodPost, "/v1/orders/8/items/42/cdr/upload-url",
			httpdto.UploadURLRequest{FileName: "a.cdr", ContentType: "application/x-coreldraw", SizeBytes: 10}, http.StatusBadRequest, "OWNERSHIP_MISMATCH"},
		{"key of another item", http.MethodPost, "/v1/orders/7/items/42/cdr/confirm",
			httpdto.ConfirmUploadRequest{ObjectKey: "orders/7/items/43/layout/1_a_b.cdr", OriginalName: "b.cdr", ContentType: "application/x-coreldraw", SizeBytes: 10},
			http.StatusBadRequest, "KEY_MISMATCH"},
		{"no active file", http.MethodGet, "/v1/orders/7/items/42/cdr/download-url", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad attachment id", http.MethodDelete, "/v1/orders/7/items/42/files/not-a-uuid", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown attachment", http.MethodDelete, "/v1/orders/7/items/42/files/6f1c2a8e-52a4-4c39-9a61-0c0b6a1d1f11", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[any](t, w)
			require.False(t, resp.Success)
			require.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestConfirmSameKeyTwiceIsNotRetryable(t *testing.T) {
	r, _ := setupRouter(t)
	req := httpdto.ConfirmUploadRequest{
		ObjectKey: "orders/7/items/42/layout/1_aa_x.cdr", OriginalName: "x.cdr",
		ContentType: "application/x-coreldraw", SizeBytes: 10,
	}

	w := doJSON(t, r, http.MethodPost, "/v1/orders/7/items/42/cdr/confirm", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/v1/orders/7/items/42/cdr/confirm", req)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	resp := decode[any](t, w)
	require.Equal(t, "KEY_ALREADY_RECORDED", resp.Code)
	require.NotContains(t, resp.Error, "retry")
}

func TestDirectUploadListAndDelete(t *testing.T) {
	r, store := setupRouter(t)

	body, contentType := multipartBody(t, "Camisa Polo.cdr", "application/x-coreldraw", []byte("layout"))
	req := httptest.NewRequest(http.MethodPost, "/v1/orders/7/items/42/cdr/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	uploaded := decode[httpdto.UploadResponse](t, w)
	a := uploaded.Data.Attachment
	require.Equal(t, "Camisa Polo.cdr", a.OriginalName)
	require.NotNil(t, a.CreatedBy)
	require.Equal(t, int64(3), *a.CreatedBy)
	require.Equal(t, []byte("layout"), store.objects[a.ObjectKey])

	w = doJSON(t, r, http.MethodGet, "/v1/orders/7/items/42/cdr/list", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[httpdto.ListAttachmentsResponse](t, w)
	require.Len(t, list.Data.Attachments, 1)

	w = doJSON(t, r, http.MethodDelete, "/v1/orders/7/items/42/files/"+a.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Empty(t, store.objects)

	w = doJSON(t, r, http.MethodGet, "/v1/orders/7/items/42/cdr/download-url", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDirectUploadDefaultsContentType(t *testing.T) {
	r, _ := setupRouter(t)

	body, contentType := multipartBody(t, "layout.cdr", "", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/orders/7/items/42/cdr/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[httpdto.UploadResponse](t, w)
	require.Equal(t, "application/octet-stream", resp.Data.Attachment.ContentType)
}

func TestDirectUploadRejections(t *testing.T) {
	r, store := setupRouter(t)

	body, contentType := multipartBody(t, "layout.cdr", "application/x-coreldraw", bytes.Repeat([]byte("a"), testMaxBytes+1))
	req := httptest.NewRequest(http.MethodPost, "/v1/orders/7/items/42/cdr/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())

	body, contentType = multipartBody(t, "layout.ai", "application/x-coreldraw", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, "/v1/orders/7/items/42/cdr/upload", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/v1/orders/7/items/42/cdr/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	require.Empty(t, store.objects)
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAttachmentHandler(nil, nil, testMaxBytes)

	for _, tt := range []struct {
		err    error
		status int
		code   string
	}{
		{uniforme_errors.ErrUpstreamStorage, http.StatusInternalServerError, "STORAGE_ERROR"},
		{uniforme_errors.ErrMetadataTransaction, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{errors.New("dial tcp 10.0.0.3:5432: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{uniforme_errors.ErrConflict, http.StatusConflict, "CONFLICT"},
		{uniforme_errors.ErrNotUploaded, http.StatusConflict, "NOT_UPLOADED"},
		{uniforme_errors.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		h.writeError(c, "test", tt.err)
		require.Equal(t, tt.status, w.Code)
		resp := decode[any](t, w)
		require.Equal(t, tt.code, resp.Code)
		require.NotContains(t, resp.Error, "10.0.0.3")
	}
}
