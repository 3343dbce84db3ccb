// Package store provides the embedded, encrypted storage engine for health
// records.
//
// One SQLCipher database holds every category table, the access policy
// table and the medical profile. The raw page key is derived from the
// database passphrase with HKDF; the file and its WAL never hold plaintext.
// A wrong passphrase is detected at Open by reading the schema.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - One open connection: writers are serialized by the engine
//
// Because the pool holds a single connection, code running inside a Tx
// must read through that Tx. Reading through the Store while the same
// goroutine holds a Tx blocks forever.
//
// # Statements
//
// All statements are built by package querysql. Values are bound as
// parameters; identifiers are validated and quoted.
package store
