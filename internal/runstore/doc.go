// Package runstore keeps a history of pipeline dispatches in SQLite or
// PostgreSQL through GORM. Store implements pipeline.RunSink and backs the
// run-history endpoints.
package runstore
