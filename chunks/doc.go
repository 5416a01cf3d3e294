// Package chunks implements the content store that every other TreeDB
// structure is built on.
//
// A chunk is an immutable byte slice addressed by hash.Of(bytes). Stores
// never mutate a chunk once written: Put of bytes that already exist is a
// no-op, and Get verifies the hash of what it read before returning it.
//
// # Backends
//
//	cs := chunks.NewMemoryStore()                                // tests, ephemeral repos
//	cs := chunks.NewFileStore(fs, chunks.ZstdCompression)       // billy filesystem, one file per chunk
//	cs, _ := chunks.NewBadgerStore(badger.DefaultOptions(dir))  // embedded LSM
//	cs := chunks.NewS3Store(client, "bucket", "prefix", chunks.ZstdCompression)
//
// Stores that can enumerate and remove chunks implement Sweeper, which the
// repository garbage collector uses.
package chunks
