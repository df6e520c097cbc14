package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrIndexNotReady     = errors.New("value index not built yet")
	ErrCorruptIndex      = errors.New("value index is corrupted")
	ErrUnknownDatasource = errors.New("unknown datasource type")
	ErrInvalidRule       = errors.New("invalid abbreviation rule")
	ErrInvalidColumn     = errors.New("invalid column spec")
)
