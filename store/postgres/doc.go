// Package postgres provides a PostgreSQL-backed store.Store using pgx/v5.
// Offer reservation and conversion run inside transactions holding a row
// lock on the worker, so capacity checks are race-free across processes.
package postgres
