// Package domain defines the core business types for the session reconciler.
//
// Types in this package are pure value objects with no behavior, no database
// dependencies, and no HTTP concerns. They are the shared language between
// the resegmentation core, the stores, and the API handlers.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Pure derivation methods are allowed (they're functions on the type)
//   - Constants and enums belong here
package domain
