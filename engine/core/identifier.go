package core

import "sync/atomic"

var lastID atomic.Uint32

// IdentifierAcquireNewID hands out process-unique, monotonically increasing ids.
// Zero is never returned so it can be used as "no id".
func IdentifierAcquireNewID() uint32 {
	return lastID.Add(1)
}
