// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrCacheMiss = errors.New("cache miss")

var (
	cacheCtx   = context.Background()
	rdb        *redis.Client
	localCache *lru.Cache
)

// SetupCache initializes the in-process LRU and, when redis.url is set, a
// shared Redis second-level cache. Values are lz4 compressed before storage.
func SetupCache() {
	size := viper.GetInt("cache.local_size")
	if size == 0 {
		size = 1024
	}

	var err error
	localCache, err = lru.New(size)
	if err != nil {
		log.Panic().Err(err).Int("CacheSize", size).Msg("could not create local cache")
	}

	if redisURL := viper.GetString("redis.url"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Error().Stack().Err(err).Msg("could not parse redis url")
			return
		}
		rdb = redis.NewClient(opt)
		log.Info().Str("RedisAddr", opt.Addr).Msg("redis cache enabled")
	}
}

// CacheSet stores val under key in the local cache and, when configured, in
// Redis with the cache.ttl expiration
func CacheSet(key string, val []byte) error {
	compressed, err := Compress(val)
	if err != nil {
		return err
	}

	if localCache != nil {
		localCache.Add(key, compressed)
	}

	if rdb != nil {
		if err := rdb.Set(cacheCtx, key, compressed, viper.GetDuration("cache.ttl")).Err(); err != nil {
			log.Warn().Stack().Err(err).Str("Key", key).Msg("could not store value in redis")
			return err
		}
	}

	return nil
}

// CacheGet retrieves the value stored under key, preferring the local cache
// and falling back to Redis. Returns ErrCacheMiss when the key is unknown.
func CacheGet(key string) ([]byte, error) {
	if localCache != nil {
		if val, ok := localCache.Get(key); ok {
			return Decompress(val.([]byte))
		}
	}

	if rdb != nil {
		val, err := rdb.GetEx(cacheCtx, key, viper.GetDuration("cache.ttl")).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Warn().Stack().Err(err).Str("Key", key).Msg("could not read value from redis")
			}
			return nil, ErrCacheMiss
		}
		if localCache != nil {
			localCache.Add(key, val)
		}
		return Decompress(val)
	}

	return nil, ErrCacheMiss
}
