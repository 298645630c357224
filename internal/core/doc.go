// Package core provides the business logic for bulk metadata updates.
//
// This package is the heart of metascaler, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// the CLI, or tests without modification.
//
// # Pipeline
//
// A batch moves through fixed stages:
//
//  1. The reference file is parsed into a header and rows (package tabular).
//  2. [Classify] turns the header into a [ColumnPlan] once per file.
//  3. The [Resolver] looks up each row's identity value in the catalog.
//  4. [Build] turns a row and its single matched asset into a [ChangeSet].
//  5. The [Executor] submits change-sets, or records them on a dry run, and
//     tallies a [BatchReport].
//
// Rows never abort the batch. Only file and header problems do, and those
// surface before any catalog call is made.
//
// # Columns
//
// The "name" column identifies the asset. Headers matching a standard
// attribute (description, user_owners, group_owners, certificate) update
// that attribute; "Set::Field" headers update custom metadata. Every other
// header is ignored and logged, never rejected.
//
// # Background Runs
//
// [Service.StartRun] executes a batch in the background under a
// [RunLimiter] slot. Progress is broadcast to subscribers via
// [Service.SubscribeProgress], and [Service.CancelRun] stops new rows from
// starting while in-flight rows finish.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE005: File errors (size, format, empty file)
//   - COL001-COL002: Header errors (missing or duplicate identity column)
//   - VAL001-VAL003: Value errors (enum, owner, asset type)
//   - CAT001-CAT005: Catalog errors (search, mutation)
//   - RUN001-RUN005: Run errors (cancelled, busy, not found)
//   - REQ001: Malformed run requests
package core
