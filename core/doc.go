// Package core provides core types used throughout TreeDB.
//
// The package defines fundamental types like Identity, Table and Column,
// the column type constants, and the error categories every layer wraps.
//
// # Identity
//
// Identity identifies the author of commits:
//
//	identity := core.Identity{
//	    Name:  "John Doe",
//	    Email: "john@example.com",
//	}
//
// # Column Types
//
// Supported column types:
//   - StringType: Short strings (VARCHAR equivalent)
//   - TextType: Long text (TEXT equivalent)
//   - IntType: 64-bit integers
//   - FloatType: Floating point numbers
//   - BoolType: Boolean values
//   - DateType: Calendar dates
//   - TimestampType: Date/time values (DATETIME, TIMESTAMP)
//   - JsonType: JSON documents stored as text
//
// # Errors
//
// Every error returned by TreeDB wraps one of the sentinel categories
// (ErrNotFound, ErrSchemaViolation, ErrConcurrentModification, ...).
// Test for them with errors.Is, or map them to a stable string with ErrorCode.
package core
