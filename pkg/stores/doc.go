// Package stores provides the persistence layer for Stanchion.
// It includes a SQLite-backed state store with WAL mode, a bounded busy
// timeout for concurrent external access, embedded migrations, and a scoped
// transactional wrapper with commit-on-success, rollback-on-failure, and
// guaranteed handle release. Storage failures never escape the package as
// raw driver errors; they surface as database-kind taxonomy errors.
package stores
