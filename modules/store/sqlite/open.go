package sqlite

import (
	"database/sql"

	"github.com/bouncerbot/bouncer/internal/link"
)

// Open opens a SQLite database at the given path and returns a link.Store
// backed by it. The caller is responsible for closing the returned *sql.DB
// when done.
//
// The database is created with WAL mode, a 5 s busy timeout, and a single
// connection (SQLite serialises writes). The schema is migrated automatically.
func Open(path string) (link.Store, *sql.DB, error) {
	db, err := openDB(path, true, defaultBusyTimeout)
	if err != nil {
		return nil, nil, err
	}
	return NewStore(db), db, nil
}
