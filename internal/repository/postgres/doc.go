// Package postgres implements the repository contracts against
// PostgreSQL via database/sql and lib/pq. Schema lives in migrations/
// and is applied by cmd/migrate.
package postgres
