package apperr

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// "Key (email)=(a@b.c) already exists."
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// "... is still referenced from table "reports"."
	reReferencedFrom = regexp.MustCompile(`is still referenced from table "?([^"]+)"?`)
	// "... is not present in table "patients"."
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

// tableNames maps table names to the user-facing noun used in messages.
var tableNames = map[string]string{
	"patients":            "patient",
	"users":               "user",
	"consultations":       "consultation",
	"consultation_audios": "consultation audio",
	"exams":               "exam",
	"reports":             "report",
	"appointments":        "appointment",
}

// MapDBError maps pgx and PostgreSQL errors onto AppErrors:
//   - pgx.ErrNoRows → not_found
//   - unique_violation → conflict
//   - foreign_key_violation → foreign_key
//   - check_violation, not_null_violation → validation
//   - context deadline/cancel → timeout/canceled
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	var ae *AppError
	if errors.As(err, &ae) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: CodeTimeout, Message: "request timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: CodeCanceled, Message: "request was canceled", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: CodeNotFound, Message: "resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		field := pgErr.ColumnName
		if field == "" {
			if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
				field = m[1]
			}
		}
		return &AppError{Code: CodeConflict, Message: "this value already exists", Field: field, Cause: pgErr}
	case pgerrcode.ForeignKeyViolation:
		return &AppError{Code: CodeForeignKey, Message: foreignKeyMessage(pgErr), Cause: pgErr}
	case pgerrcode.CheckViolation:
		return &AppError{Code: CodeValidation, Message: "invalid value", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.NotNullViolation:
		return &AppError{Code: CodeValidation, Message: "required field is missing", Field: pgErr.ColumnName, Cause: pgErr}
	default:
		return &AppError{Code: CodeInternal, Message: "database error", Cause: pgErr}
	}
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	if m := reReferencedFrom.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return "cannot delete because this record is still referenced by a " + domainName(m[1])
	}
	if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return "referenced " + domainName(m[1]) + " does not exist"
	}
	if pgErr.TableName != "" {
		return "operation violates a reference to " + domainName(pgErr.TableName)
	}
	return "operation violates a reference constraint"
}

func domainName(table string) string {
	if n, ok := tableNames[table]; ok {
		return n
	}
	return table
}
