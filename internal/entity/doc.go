// Package entity defines the record types mirrored by the offline cache.
//
// This package contains type definitions and identity helpers only. All other
// internal packages import entity; entity imports nothing internal.
//
// Key design constraints:
//   - Entity is a sealed union of exactly three kinds (scan, directory, promo)
//   - Every switch over Kind is exhaustive and panics on unknown values
//   - Pending operations carry a by-value snapshot (Envelope), never a live reference
//   - All JSON tags use snake_case
package entity
