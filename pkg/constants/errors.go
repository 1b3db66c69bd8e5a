package constants

import (
	"errors"
	"fmt"
)

// Errors
var (
	InvalidResponse = errors.New("invalid FileMaker Data API response") //nolint:stylecheck
	ErrNoRecord     = errors.New("error no record")
)

var (
	ErrNoBaseURL          = errors.New("base url not set")
	ErrNoDatabase         = errors.New("database is not set")
	ErrNoCredentials      = errors.New("username or password or both are not set")
	ErrMethodNotAvailable = errors.New("method not available on this connection")
)

// ErrUnsupportedOperation is returned before any round trip when an operation has
// no equivalent in the Data API.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// ErrConfiguration is the root of every error caused by how a model or a query was set up.
var ErrConfiguration = errors.New("configuration error")

var (
	ErrMissingPrimaryKey         = fmt.Errorf("%w: model has no primary key value", ErrConfiguration)
	ErrUnsupportedContainerValue = fmt.Errorf("%w: unsupported container field value", ErrConfiguration)
	ErrUnknownRelation           = fmt.Errorf("%w: unknown relation", ErrConfiguration)
	ErrInvalidOperator           = fmt.Errorf("%w: invalid operator", ErrConfiguration)
	ErrRelatedFieldMismatch      = fmt.Errorf("%w: related record field count differs from the first related record", ErrConfiguration)
	ErrNoLayout                  = fmt.Errorf("%w: model has no layout", ErrConfiguration)
	ErrNotPersisted              = fmt.Errorf("%w: model has no record id", ErrConfiguration)
	ErrNoContainerUploader       = fmt.Errorf("%w: no container uploader configured", ErrConfiguration)
)
