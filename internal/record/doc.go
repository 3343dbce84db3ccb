// Package record provides the foundational types of the health store.
//
// This package contains type definitions only. All other internal packages
// import record; record imports nothing internal. This keeps the closed
// category and metric enumerations the single source of truth for table
// names, address segments and column sets.
//
// Key design constraints:
//   - Category and Metric are closed enums; switches over them are exhaustive
//   - Column names are snake_case and match the stored schema exactly
//   - Payloads are flat key/value maps (Values), never nested
//   - Timestamps are epoch milliseconds (int64)
package record
