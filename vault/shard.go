package vault

import "hash/fnv"

// noteShardIndex maps an id to its lock shard.
func noteShardIndex(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() & (noteShardCount - 1))
}
