// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: BaseModel and the model registry used by AutoMigrate
// - store.go: destination store profiles
// - sync_record.go: the per (store, SKU) sync ledger
// - sales.go: monthly sales aggregates and ingested line receipts
// - batch_job.go: resumable batch jobs
// - source_item.go: the read-only source catalog tables
//
// Slices and nested values are stored as JSON text columns.
package models
