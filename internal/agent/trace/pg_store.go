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

package trace

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	xerrors "agent-platform/pkg/errors"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS agent_traces (
	session_id TEXT PRIMARY KEY,
	agent TEXT NOT NULL DEFAULT '',
	final_state TEXT NOT NULL DEFAULT '',
	trace JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PGStore PostgreSQL 实现：trace 整体存 JSONB，供离线分析与回放
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore 创建基于 PostgreSQL 的 trace 存储；dsn 为连接串
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, xerrors.Wrap(err, "trace: ensure schema")
	}
	return &PGStore{pool: pool}, nil
}

// Close 关闭连接池（可选，用于优雅退出）
func (s *PGStore) Close() {
	s.pool.Close()
}

// Save 实现 Store.Save
func (s *PGStore) Save(ctx context.Context, t Trace) error {
	if t.SessionID == "" {
		return xerrors.Wrap(xerrors.ErrInvalidArg, "trace: empty session id")
	}
	data, err := t.Serialize()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_traces (session_id, agent, final_state, trace, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO UPDATE SET agent = $2, final_state = $3, trace = $4`,
		t.SessionID, t.Agent, t.Final, data, t.CreatedAt)
	if err != nil {
		return xerrors.Wrap(err, "trace: pg save")
	}
	return nil
}

// Load 实现 Store.Load
func (s *PGStore) Load(ctx context.Context, sessionID string) (*Trace, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT trace FROM agent_traces WHERE session_id = $1`, sessionID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.Wrapf(xerrors.ErrNotFound, "trace: session %s", sessionID)
		}
		return nil, xerrors.Wrap(err, "trace: pg load")
	}
	return Parse(data)
}

// ListSessions 实现 Store.ListSessions
func (s *PGStore) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id FROM agent_traces ORDER BY created_at`)
	if err != nil {
		return nil, xerrors.Wrap(err, "trace: pg list")
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
