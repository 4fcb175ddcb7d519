// Package stores provides the SQLite journal for erbridge providers.
// It records every failure returned to an SDK caller and every provider
// lifecycle transition, with WAL mode, embedded migrations and retention
// purging.
package stores
