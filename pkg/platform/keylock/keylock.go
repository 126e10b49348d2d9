// Package keylock provides a sharded mutex keyed by string. The discovery
// confirmation workflow uses it to serialize all writes touching one account:
// the first-discovery read and the stats increments must not interleave for
// the same owner, while different accounts proceed concurrently.
package keylock

import "sync"

// numShards distributes keys across independent mutexes. Operations for the
// same key always land on the same shard; collisions between different keys
// only cost extra serialization, never correctness.
const numShards = 128

// KeyedMutex is a fixed-size pool of mutexes addressed by key hash.
type KeyedMutex struct {
	shards [numShards]sync.Mutex
}

// New creates a KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the shard owning key and returns the matching unlock function.
//
//	unlock := locks.Lock(accountID)
//	defer unlock()
func (m *KeyedMutex) Lock(key string) (unlock func()) {
	shard := &m.shards[hashString(key)%numShards]
	shard.Lock()
	return shard.Unlock
}

// hashString uses FNV-1a for even hash distribution.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
