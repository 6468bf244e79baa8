// Package integration contains the catalog sync bounded context.
// It models how a canonical source catalog is reconciled with many
// independently hosted destination storefronts.
//
// Key concepts:
//   - StoreProfile: a destination storefront and its API credentials
//   - StorefrontClient: port for one destination's catalog API
//   - SyncRecord: per-(store, SKU) reconciliation outcome kept in the ledger
//   - SalesRecord: monthly per-SKU sales aggregate pulled from a destination
//   - BatchJob: a resumable, sliced sync run across items and stores
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
