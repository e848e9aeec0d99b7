// Package gormstore 以 Gorm + SQLite 归档成交记录与权益曲线，
// 供报表与 HTTP 查询使用。
package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TradeModel 一笔已执行订单的归档行。
type TradeModel struct {
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	Timestamp  int64          `gorm:"column:ts;index:idx_trades_ts"`
	Symbol     string         `gorm:"column:symbol;size:64"`
	OrderType  string         `gorm:"column:order_type;size:8"`
	Side       string         `gorm:"column:side;size:8"`
	Size       string         `gorm:"column:size;size:32"`
	Price      string         `gorm:"column:price;size:32"`
	Fee        string         `gorm:"column:fee;size:32"`
	PnL        string         `gorm:"column:pnl;size:32"`
	OrderID    string         `gorm:"column:order_id;size:64"`
	SignalJSON datatypes.JSON `gorm:"column:signal_json;type:TEXT"`
	CreatedAt  time.Time
}

func (TradeModel) TableName() string { return "trades" }

// EquityPointModel 权益曲线采样点。
type EquityPointModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Timestamp int64  `gorm:"column:ts;index:idx_equity_ts"`
	Balance   string `gorm:"column:balance;size:32"`
	Equity    string `gorm:"column:equity;size:32"`
	CreatedAt time.Time
}

func (EquityPointModel) TableName() string { return "equity_points" }

// TradeStore 成交归档存储。
type TradeStore struct {
	db *gorm.DB
}

// NewTradeStore 初始化 SQLite 归档库。
func NewTradeStore(path string) (*TradeStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("trade store: 归档路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TradeModel{}, &EquityPointModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &TradeStore{db: db}, nil
}

// Close 关闭底层连接。
func (s *TradeStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordTrade 归档一笔成交。
func (s *TradeStore) RecordTrade(ctx context.Context, trade TradeModel) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trade store 未初始化")
	}
	if trade.Timestamp == 0 {
		trade.Timestamp = time.Now().UnixMilli()
	}
	return s.db.WithContext(ctx).Create(&trade).Error
}

// RecordEquityPoint 采样一次权益。
func (s *TradeStore) RecordEquityPoint(ctx context.Context, point EquityPointModel) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trade store 未初始化")
	}
	if point.Timestamp == 0 {
		point.Timestamp = time.Now().UnixMilli()
	}
	return s.db.WithContext(ctx).Create(&point).Error
}

// RecentTrades 时间倒序返回最近成交。
func (s *TradeStore) RecentTrades(ctx context.Context, limit int) ([]TradeModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trade store 未初始化")
	}
	if limit <= 0 {
		limit = 50
	}
	var out []TradeModel
	err := s.db.WithContext(ctx).Order("ts DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// EquityCurve 时间正序返回权益曲线。
func (s *TradeStore) EquityCurve(ctx context.Context, since int64) ([]EquityPointModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trade store 未初始化")
	}
	var out []EquityPointModel
	q := s.db.WithContext(ctx).Order("ts ASC, id ASC")
	if since > 0 {
		q = q.Where("ts >= ?", since)
	}
	err := q.Find(&out).Error
	return out, err
}
