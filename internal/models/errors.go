package models

import "errors"

// Sentinel error kinds for the ingestion run. Components wrap them with %w so callers can
// classify with errors.Is or Kind.
var (
	ErrMalformedFilename = errors.New("malformed filename")
	ErrUnparseableTable  = errors.New("unparseable table")
	ErrUnknownRegion     = errors.New("unknown region")
	ErrUnknownPractice   = errors.New("unknown practice")
	ErrInvalidCount      = errors.New("invalid count")
	ErrStoreConnection   = errors.New("store connection failure")
	ErrUpsertConflict    = errors.New("upsert conflict failure")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrMalformedFilename, "MalformedFilename"},
	{ErrUnparseableTable, "UnparseableTable"},
	{ErrUnknownRegion, "UnknownRegion"},
	{ErrUnknownPractice, "UnknownPractice"},
	{ErrInvalidCount, "InvalidCount"},
	{ErrStoreConnection, "StoreConnectionFailure"},
	{ErrUpsertConflict, "UpsertConflictFailure"},
}

// Kind returns the taxonomy name of err, or "Unexpected" when it wraps none of the sentinels.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unexpected"
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreConnection)
}
