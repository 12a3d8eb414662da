package core

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes the conflict-checked writes map onto sentinels.
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}
