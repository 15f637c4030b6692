// Package migrations holds the schema history of the dealer store.
//
// SQL bodies are embedded so the binary can migrate a database without the
// files being present on disk. Columns added to existing tables are declared
// in Go as database.ColumnAddition so each is only added when missing.
package migrations

import (
	"embed"
	"fmt"
)

//go:embed *.sql
var scriptsFS embed.FS

// script returns an embedded SQL file. The set of files is fixed at build
// time, so a missing one is a programming error.
func script(name string) string {
	b, err := scriptsFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("migrations: embedded script %s: %v", name, err))
	}
	return string(b)
}
