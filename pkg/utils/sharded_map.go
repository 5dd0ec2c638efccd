// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"hash/maphash"
	"sync"
)

const numShards = 64

var shardSeed = maphash.MakeSeed()

// ShardedMap is a concurrent string-keyed map. Keys are spread over
// numShards independently locked maps.
type ShardedMap[V any] struct {
	shards [numShards]shard[V]
}

type shard[V any] struct {
	sync.RWMutex
	m map[string]V
}

// NewShardedMap creates an empty map
func NewShardedMap[V any]() *ShardedMap[V] {
	sm := &ShardedMap[V]{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string]V)
	}
	return sm
}

func (sm *ShardedMap[V]) getShard(key string) *shard[V] {
	return &sm.shards[maphash.String(shardSeed, key)%numShards]
}

// Load returns the value for a key
func (sm *ShardedMap[V]) Load(key string) (V, bool) {
	s := sm.getShard(key)
	s.RLock()
	v, ok := s.m[key]
	s.RUnlock()
	return v, ok
}

// Store sets a value for a key
func (sm *ShardedMap[V]) Store(key string, value V) {
	s := sm.getShard(key)
	s.Lock()
	s.m[key] = value
	s.Unlock()
}

// Delete removes a key
func (sm *ShardedMap[V]) Delete(key string) {
	s := sm.getShard(key)
	s.Lock()
	delete(s.m, key)
	s.Unlock()
}

// Range calls f for each entry until f returns false. f must not modify
// the map: each shard is read-locked while it is visited.
func (sm *ShardedMap[V]) Range(f func(key string, value V) bool) {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.RLock()
		for k, v := range s.m {
			if !f(k, v) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}

// Len returns the total number of entries
func (sm *ShardedMap[V]) Len() int {
	count := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.RLock()
		count += len(s.m)
		s.RUnlock()
	}
	return count
}

// Clear removes all entries
func (sm *ShardedMap[V]) Clear() {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.Lock()
		clear(s.m)
		s.Unlock()
	}
}
