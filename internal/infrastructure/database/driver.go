package database

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DriverName is the database/sql driver registered by this package.
// It is go-sqlite3 with the SQL functions below added to every connection.
const DriverName = "sqlite3_dealer"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: registerFunctions,
	})
}

// registerFunctions adds:
//
//	casefold(text) TEXT  Unicode case folding plus NFC, used for case-insensitive search.
//
// SQLite's own lower() and LIKE only fold ASCII, which misses names such as
// "Müller" vs "MÜLLER".
func registerFunctions(conn *sqlite3.SQLiteConn) error {
	return conn.RegisterFunc("casefold", caseFold, true)
}

// caseFold allocates a Caser per call; cases.Caser is not safe for
// concurrent use. NFC makes a decomposed "u"+U+0308 match a precomposed "ü".
func caseFold(s string) string {
	return norm.NFC.String(cases.Fold().String(s))
}
