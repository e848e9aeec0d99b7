// Package decisionlog 持久化每轮 AI 决策与执行结果，方便排查与复盘。
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fathom/internal/ai"

	_ "modernc.org/sqlite"
)

// Store 管理 AI 决策日志的 SQLite 存储。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// DecisionRecord 一轮决策的完整记录（含模型输入/输出）。
type DecisionRecord struct {
	ID         int64  `json:"id"`
	Timestamp  int64  `json:"ts"`
	Symbol     string `json:"symbol"`
	Model      string `json:"model"`
	System     string `json:"system_prompt"`
	User       string `json:"user_prompt"`
	RawOutput  string `json:"raw_output"`
	Action     string `json:"action"`
	Confidence string `json:"confidence"`
	SignalJSON string `json:"signal_json"`
	Error      string `json:"error,omitempty"`
}

// OrderRecord 单笔执行事件。
type OrderRecord struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"ts"`
	Symbol    string `json:"symbol"`
	OrderType string `json:"order_type"`
	Size      string `json:"size"`
	Price     string `json:"price"`
	OrderID   string `json:"order_id"`
	PnL       string `json:"pnl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewStore 初始化 SQLite 存储。
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("decision log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close 关闭底层 DB。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT,
			model TEXT,
			system_prompt TEXT,
			user_prompt TEXT,
			raw_output TEXT,
			action TEXT,
			confidence TEXT,
			signal_json TEXT,
			error TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_ts_id ON decision_logs(ts DESC, id DESC);`,
		`CREATE TABLE IF NOT EXISTS order_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT,
			order_type TEXT,
			size TEXT,
			price TEXT,
			order_id TEXT,
			pnl TEXT,
			error TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_order_logs_ts_id ON order_logs(ts DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("初始化 decision log schema 失败: %w", err)
		}
	}
	return nil
}

// AppendDecision 追加一轮决策记录。signal 为 nil 表示本轮失败（Error 必填）。
func (s *Store) AppendDecision(ctx context.Context, rec DecisionRecord, signal *ai.Signal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, fmt.Errorf("decision log store 已关闭")
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	if signal != nil {
		rec.Action = string(signal.Signal.Action)
		rec.Confidence = string(signal.Signal.Confidence)
		if raw, err := json.Marshal(signal); err == nil {
			rec.SignalJSON = string(raw)
		}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO decision_logs (ts, symbol, model, system_prompt, user_prompt, raw_output, action, confidence, signal_json, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Symbol, rec.Model, rec.System, rec.User, rec.RawOutput,
		rec.Action, rec.Confidence, rec.SignalJSON, rec.Error, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("写入 decision log 失败: %w", err)
	}
	return res.LastInsertId()
}

// AppendOrder 追加一笔执行记录。
func (s *Store) AppendOrder(ctx context.Context, rec OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return fmt.Errorf("decision log store 已关闭")
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_logs (ts, symbol, order_type, size, price, order_id, pnl, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Symbol, rec.OrderType, rec.Size, rec.Price, rec.OrderID,
		rec.PnL, rec.Error, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("写入 order log 失败: %w", err)
	}
	return nil
}

// RecentDecisions 按时间倒序返回最近的决策记录。
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("decision log store 已关闭")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, symbol, model, system_prompt, user_prompt, raw_output, action, confidence, signal_json, error
		 FROM decision_logs ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询 decision log 失败: %w", err)
	}
	defer rows.Close()
	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Symbol, &rec.Model, &rec.System,
			&rec.User, &rec.RawOutput, &rec.Action, &rec.Confidence, &rec.SignalJSON, &rec.Error); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentOrders 按时间倒序返回最近的执行记录。
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("decision log store 已关闭")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, symbol, order_type, size, price, order_id, pnl, error
		 FROM order_logs ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询 order log 失败: %w", err)
	}
	defer rows.Close()
	var out []OrderRecord
	for rows.Next() {
		var rec OrderRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Symbol, &rec.OrderType, &rec.Size,
			&rec.Price, &rec.OrderID, &rec.PnL, &rec.Error); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
