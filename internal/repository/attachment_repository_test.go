package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"uniforme-api/internal/domain/attachment"
	uniforme_errors "uniforme-api/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newAttachment(orderID, itemID int64, name string) *attachment.Attachment {
	return &attachment.Attachment{
		OrderID:      orderID,
		ItemID:       itemID,
		ObjectKey:    fmt.Sprintf("orders/%d/items/%d/layout/%s_%s.cdr", orderID, itemID, uuid.NewString()[:8], name),
		OriginalName: name + ".cdr",
		ContentType:  "application/x-coreldraw",
		SizeBytes:    1024,
	}
}

func countActive(t *testing.T, repo AttachmentRepository, itemID int64) int {
	t.Helper()
	rows, err := repo.ListByItem(context.Background(), itemID)
	require.NoError(t, err)
	active := 0
	for _, r := range rows {
		if r.IsActive() {
			active++
		}
	}
	return active
}

func TestReplaceSupersedesPreviousVersion(t *testing.T) {
	ctx := context.Background()
	db := SetupTestDB(t)
	CreateTestItem(t, db, 7, 42)
	repo := NewAttachmentRepository(db)

	first := newAttachment(7, 42, "v1")
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, repo.Replace(ctx, first))
	require.NotEqual(t, uuid.Nil, first.ID)
	require.Equal(t, attachment.StatusUploaded, first.Status)

	second := newAttachment(7, 42, "v2")
	require.NoError(t, repo.Replace(ctx, second))

	active, err := repo.GetActiveByItem(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)

	old, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, attachment.StatusSuperseded, old.Status)
	require.NotNil(t, old.DeletedAt)

	rows, err := repo.ListByItem(ctx, 42)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, second.ID, rows[0].ID, "newest first")
	require.Equal(t, 1, countActive(t, repo, 42))
}

func TestReplaceRejectsItemOfAnotherOrder(t *testing.T) {
	db := SetupTestDB(t)
	CreateTestItem(t, db, 7, 42)
	repo := NewAttachmentRepository(db)

	err := repo.Replace(context.Background(), newAttachment(8, 42, "wrong"))
	require.ErrorIs(t, err, uniforme_errors.ErrOwnership)

	rows, err := repo.ListByItem(context.Background(), 42)
	require.NoError(t, err)
	require.Empty(t, rows)
}

// SQLite ignores FOR UPDATE and the test pool has one connection, so this
// covers the partial unique index and the supersede step. The item row lock
// itself is covered by TestReplaceConcurrentPostgres.
func TestReplaceConcurrentKeepsSingleActiveRow(t *testing.T) {
	ctx := context.Background()
	db := SetupTestDB(t)
	CreateTestItem(t, db, 7, 42)
	repo := NewAttachmentRepository(db)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.Replace(ctx, newAttachment(7, 42, fmt.Sprintf("w%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	committed := 0
	for err := range errs {
		if err == nil {
			committed++
			continue
		}
		require.ErrorIs(t, err, uniforme_errors.ErrConflict)
	}
	require.GreaterOrEqual(t, committed, 1)
	require.Equal(t, 1, countActive(t, repo, 42))

	rows, err := repo.ListByItem(ctx, 42)
	require.NoError(t, err)
	require.Len(t, rows, committed)
}

func TestActiveIndexRejectsSecondActiveRow(t *testing.T) {
	db := SetupTestDB(t)
	CreateTestItem(t, db, 7, 42)

	a := newAttachment(7, 42, "a")
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	require.NoError(t, db.Create(a).Error)

	b := newAttachment(7, 42, "b")
	b.ID = uuid.New()
	b.CreatedAt = time.Now().UTC()
	require.Error(t, db.Create(b).Error)

	// A superseded row no longer counts against the index.
	require.NoError(t, db.Model(a).Update("deleted_at", time.Now().UTC()).Error)
	require.NoError(t, db.Create(b).Error)
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	db := SetupTestDB(t)
	CreateTestItem(t, db, 7, 42)
	repo := NewAttachmentRepository(db)

	a := newAttachment(7, 42, "v1")
	require.NoError(t, repo.Replace(ctx, a))

	deleted, err := repo.SoftDelete(ctx, 7, 42, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ObjectKey, deleted.ObjectKey)
	require.Equal(t, attachment.StatusDeleted, deleted.Status)
	require.NotNil(t, deleted.DeletedAt)

	_, err = repo.GetActiveByItem(ctx, 42)
	require.ErrorIs(t, err, uniforme_errors.ErrNotFound)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, attachment.StatusDeleted, got.Status)
	require.NotNil(t, got.DeletedAt)

	// Already inactive.
	_, err = repo.SoftDelete(ctx, 7, 42, a.ID)
	require.ErrorIs(t, err, uniforme_errors.ErrNotFound)
	_, err = repo.SoftDelete(ctx, 7, 42, uuid.New())
	require.ErrorIs(t, err, uniforme_errors.ErrNotFound)
	_, err = repo.SoftDelete(ctx, 9, 42, a.ID)
	require.ErrorIs(t, err, uniforme_errors.ErrOwnership)
}

func TestSoftDeleteSkipsSupersededRow(t *testing.T) {
	ctx := context.Background()
	db := SetupTestDB(t)
	CreateTestItem(t, db, 7, 42)
	repo := NewAttachmentRepository(db)

	a := newAttachment(7, 42, "a")
	require.NoError(t, repo.Replace(ctx, a))
	b := newAttachment(7, 42, "b")
	require.NoError(t, repo.Replace(ctx, b))

	_, err := repo.SoftDelete(ctx, 7, 42, a.ID)
	require.ErrorIs(t, err, uniforme_errors.ErrNotFound)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, attachment.StatusSuperseded, got.Status)
}

func TestReplaceRejectsRecordedObjectKey(t *testing.T) {
	ctx := context.Background()
	db := SetupTestDB(t)
	CreateTestItem(t, db, 7, 42)
	repo := NewAttachmentRepository(db)

	first := newAttachment(7, 42, "v1")
	require.NoError(t, repo.Replace(ctx, first))

	again := newAttachment(7, 42, "v1")
	again.ObjectKey = first.ObjectKey
	err := repo.Replace(ctx, again)
	require.ErrorIs(t, err, uniforme_errors.ErrKeyRecorded)
	require.NotErrorIs(t, err, uniforme_errors.ErrConflict)

	// The first row stays active.
	active, err := repo.GetActiveByItem(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)
}

func TestGetByIDNotFound(t *testing.T) {
	repo := NewAttachmentRepository(SetupTestDB(t))
	_, err := repo.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, uniforme_errors.ErrNotFound)
}

func TestBelongsToOrder(t *testing.T) {
	ctx := context.Background()
	db := SetupTestDB(t)
	CreateTestItem(t, db, 7, 42)
	items := NewOrderItemRepository(db)

	ok, err := items.BelongsToOrder(ctx, 7, 42)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = items.BelongsToOrder(ctx, 8, 42)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = items.BelongsToOrder(ctx, 7, 43)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMapTxError(t *testing.T) {
	require.NoError(t, mapTxError(nil))
	require.ErrorIs(t, mapTxError(uniforme_errors.ErrOwnership), uniforme_errors.ErrOwnership)
	require.ErrorIs(t, mapTxError(uniforme_errors.ErrNotFound), uniforme_errors.ErrNotFound)
	require.ErrorIs(t, mapTxError(gorm.ErrDuplicatedKey), uniforme_errors.ErrConflict)
	require.ErrorIs(t, mapTxError(&pgconn.PgError{Code: "23505"}), uniforme_errors.ErrConflict)
	require.ErrorIs(t, mapTxError(&pgconn.PgError{Code: "23505", ConstraintName: ActiveAttachmentIndex}), uniforme_errors.ErrConflict)
	require.ErrorIs(t, mapTxError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_order_item_attachments_object_key"}), uniforme_errors.ErrKeyRecorded)
	require.ErrorIs(t, mapTxError(uniforme_errors.ErrKeyRecorded), uniforme_errors.ErrKeyRecorded)
	require.ErrorIs(t, mapTxError(&pgconn.PgError{Code: "40001"}), uniforme_errors.ErrMetadataTransaction)
	require.ErrorIs(t, mapTxError(fmt.Errorf("boom")), uniforme_errors.ErrMetadataTransaction)
}
