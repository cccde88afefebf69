//go:build !sqlite

package storage

import "errors"

// ErrSQLiteUnavailable is returned for the sqlite kind by binaries built
// without the sqlite tag.
var ErrSQLiteUnavailable = errors.New("sqlite store not compiled in; rebuild with -tags sqlite or use the badger store")

func newSQLiteStore(string) (Store, error) {
	return nil, ErrSQLiteUnavailable
}
