// Package postgres holds the sqlx-backed repositories. Queries are explicit
// SQL constants; soft deletes are filtered with deleted_at IS NULL in every
// read path.
package postgres

import (
	"database/sql"
	"errors"
)

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
