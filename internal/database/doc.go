// Package database provides connection pool management for PostgreSQL.
//
// The pool backs the stored preference table (see internal/prefs).
package database
