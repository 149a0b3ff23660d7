package sqlfrag

import (
	"errors"
)

// Errors returned by the composer. All of them are reported when a statement is
// built, never when it is executed; use errors.Is to test for them.
var (
	ErrMetadata             = errors.New("sqlfrag: invalid table metadata")
	ErrInvalidFragment      = errors.New("sqlfrag: invalid sql fragment")
	ErrMissingPrimaryKey    = errors.New("sqlfrag: missing primary key")
	ErrMissingWhereClause   = errors.New("sqlfrag: missing WHERE clause")
	ErrUnresolvedColumn     = errors.New("sqlfrag: unresolved column")
	ErrInvalidJoinArgument  = errors.New("sqlfrag: invalid join argument")
	ErrDriverUnavailable    = errors.New("sqlfrag: driver unavailable")
	ErrUnsupportedConverter = errors.New("sqlfrag: value not supported by converter")
)
