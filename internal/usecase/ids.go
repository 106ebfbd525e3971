package usecase

import "github.com/oklog/ulid/v2"

// newID mints a sortable unique id for persisted records.
func newID() string { return ulid.Make().String() }
