// Package ir holds the shared vocabulary of the factory: principal ids, the
// records exchanged with units (initialization, mint arguments, outcomes), the
// constrained value model those records are encoded through, and the compiled
// module and service declarations.
//
// ir imports nothing internal; every other package builds on it.
//
// Key design constraints:
//   - NO float types anywhere. Numbers are int64 or unbounded nats
//   - Wire bytes are RFC 8785 canonical JSON with strings kept as given (MarshalWire)
//   - Hashed identities additionally NFC-normalize strings (MarshalCanonical)
//   - Absent optional fields are omitted, never encoded as null
//   - All JSON tags use snake_case
package ir
