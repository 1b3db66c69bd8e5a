package fmorm

import (
	"github.com/filemakergo/fmorm/pkg/connection"
	"github.com/filemakergo/fmorm/pkg/constants"
)

// StoreError is an error reported by the FileMaker server.
type StoreError = connection.StoreError

var (
	ErrNoRecord             = constants.ErrNoRecord
	ErrUnsupportedOperation = constants.ErrUnsupportedOperation
	ErrConfiguration        = constants.ErrConfiguration
	ErrMissingPrimaryKey    = constants.ErrMissingPrimaryKey
	ErrUnknownRelation      = constants.ErrUnknownRelation
	ErrNotPersisted         = constants.ErrNotPersisted
)
