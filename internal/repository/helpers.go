package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/industrialcatalog/catalog-server/internal/database"
)

// HandleNotFound turns sql.ErrNoRows into (nil, nil). Lookups by email or id
// treat a missing admin or session as a normal outcome.
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// findOne rebinds query for the connection's driver and scans a single row.
func findOne[T any](ctx context.Context, db database.DBTX, query string, args ...interface{}) (*T, error) {
	var row T
	err := db.GetContext(ctx, &row, db.Rebind(query), args...)
	return HandleNotFound(&row, err)
}

// affectedExactlyOne reports whether a conditional write matched one row.
func affectedExactlyOne(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
