// Package tokenstore persists the single bearer token that survives process restarts.
//
// A Store holds at most one token. Save replaces it, Clear removes it, and Load after
// Clear reports ErrNotFound. Within an engine the session state machine is the only
// caller of Save and Clear; everything else only loads.
//
// Drivers: [MemoryStore] (tests, ephemeral clients), [FileStore] (a single 0600 file
// written atomically), [RedisStore] (shared clients keyed by device), and [KeyringStore]
// (the operating system keychain).
package tokenstore
