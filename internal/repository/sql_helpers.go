package repository

import (
	"errors"
	"fmt"
	"strings"

	uniforme_errors "uniforme-api/pkg/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// isObjectKeyViolation reports a unique violation on object_key, which no
// retry can resolve.
func isObjectKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "object_key")
	}
	return false
}

// mapTxError keeps domain sentinels intact and folds everything else into
// ErrConflict or ErrMetadataTransaction.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, uniforme_errors.ErrOwnership),
		errors.Is(err, uniforme_errors.ErrNotFound),
		errors.Is(err, uniforme_errors.ErrKeyRecorded):
		return err
	case isObjectKeyViolation(err):
		return fmt.Errorf("%w: %v", uniforme_errors.ErrKeyRecorded, err)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", uniforme_errors.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", uniforme_errors.ErrMetadataTransaction, err)
	}
}
