package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/evaluation"
)

// postgres error codes
const (
	codeInvalidText         = "22P02"
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

// EvaluationRepository stores the evaluation engine's records in Postgres.
type EvaluationRepository struct {
	db *sqlx.DB
}

var _ evaluation.Repository = (*EvaluationRepository)(nil) // interface compliance check

func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func newID() string {
	return uuid.New().String()
}

// withTx runs `fn` in a transaction, committed when `fn` returns nil.
func (repo *EvaluationRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func pqErrCode(err error) pq.ErrorCode {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return pqErr.Code
	}
	return ""
}

// trapNotFound maps "no rows" and malformed ids to `notFound`.
func trapNotFound(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows || pqErrCode(err) == codeInvalidText {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// checkAffected returns `notFound` when `res` did not touch any row.
func checkAffected(res sql.Result, err, notFound error, msg string) error {
	if err != nil {
		return trapNotFound(err, notFound, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// where builds an AND clause from non-empty conditions; placeholders are numbered in order.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
