// Copyright 2026 fanjia1024
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

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "agent-platform/pkg/errors"
)

const redisKeyPrefix = "agent:conversation:"

// RedisStore Redis 实现；跨进程共享多轮会话
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // <=0 不过期
}

// NewRedisStore 创建 Redis 会话存储并验证连通性
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(err, "conversation: redis ping")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Close 关闭连接（优雅退出用）
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Load 实现 Store.Load
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Log, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, xerrors.Wrapf(xerrors.ErrNotFound, "conversation: session %s", sessionID)
		}
		return nil, xerrors.Wrap(err, "conversation: redis get")
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, xerrors.Wrap(err, "conversation: decode entries")
	}
	return NewLogFromEntries(entries), nil
}

// Save 实现 Store.Save
func (s *RedisStore) Save(ctx context.Context, sessionID string, log *Log) error {
	if sessionID == "" {
		return xerrors.Wrap(xerrors.ErrInvalidArg, "conversation: empty session id")
	}
	data, err := json.Marshal(log.Entries())
	if err != nil {
		return xerrors.Wrap(err, "conversation: encode entries")
	}
	var ttl time.Duration
	if s.ttl > 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sessionID, data, ttl).Err(); err != nil {
		return xerrors.Wrap(err, "conversation: redis set")
	}
	return nil
}

// Delete 实现 Store.Delete
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return xerrors.Wrap(err, "conversation: redis del")
	}
	return nil
}
