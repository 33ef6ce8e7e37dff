package repo

import "errors"

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

type scanner interface {
	Scan(dest ...any) error
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
