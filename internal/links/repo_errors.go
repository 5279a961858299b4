package links

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jackc/pgx/v5/pgconn"
)

func errDuplicateID(id string) error {
	return fmt.Errorf("link id %q already exists", id)
}

// isConditionFailed reports whether DynamoDB rejected a write because its
// condition expression did not hold.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func isIDUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" &&
		pgErr.ConstraintName == "links_pkey"
}

// isDataException reports whether Postgres rejected a value the caller sent,
// such as a NUL byte in text (SQLSTATE class 22).
func isDataException(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "22")
}
