package security

import "hash/fnv"

// shardCount is the number of lock shards per store. Power of two so the
// shard index is a cheap mask.
const shardCount = 32

// shardIndex maps a state key to its lock shard.
func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() & (shardCount - 1))
}
