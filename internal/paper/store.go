package paper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fathom/internal/logger"

	"github.com/google/uuid"
)

const (
	// DefaultInitialBalance 新账本的初始资金（USDT）。
	DefaultInitialBalance = 1000.0
	// DefaultSymbol 单一合约标的。
	DefaultSymbol = "cmt_btcusdt"
)

// Store 持有唯一的内存账本并负责持久化。
// 所有变更操作经由同一把写锁串行化（任意时刻至多一个变更在途）；
// 读侧投影走读锁，彼此并发但始终观察到一致快照。
type Store struct {
	mu sync.RWMutex

	path           string
	symbol         string
	initialBalance float64

	state State

	now   func() time.Time
	newID func() string
}

// Option 调整 Store 行为（测试注入时钟/ID）。
type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func WithSymbol(symbol string) Option {
	return func(s *Store) {
		if symbol != "" {
			s.symbol = symbol
		}
	}
}

// NewStore 构建账本句柄（不做 IO，调用 Load 后方可使用）。
func NewStore(path string, initialBalance float64, opts ...Option) *Store {
	if initialBalance <= 0 {
		initialBalance = DefaultInitialBalance
	}
	s := &Store{
		path:           path,
		symbol:         DefaultSymbol,
		initialBalance: initialBalance,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = defaultState(s.initialBalance, s.nowMillis())
	return s
}

func (s *Store) nowMillis() int64 { return s.now().UnixMilli() }

func defaultState(initialBalance float64, nowMs int64) State {
	return State{
		Balance: Balance{
			Total:     initialBalance,
			Available: initialBalance,
			Frozen:    0,
		},
		Positions:      []Position{},
		Orders:         []Order{},
		Bills:          []Bill{},
		InitialBalance: initialBalance,
		CreatedAt:      nowMs,
		UpdatedAt:      nowMs,
	}
}

// Load 读取持久化状态。文件缺失或无法解析时降级为全新默认状态
// 并立即落盘；损坏只记录告警，不致命。
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("账本读取失败，使用全新状态: %v", err)
		} else {
			logger.Infof("账本初始化（新建）: %s", s.path)
		}
		s.state = defaultState(s.initialBalance, s.nowMillis())
		return s.saveLocked()
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warnf("账本解析失败，使用全新状态: %v", err)
		s.state = defaultState(s.initialBalance, s.nowMillis())
		return s.saveLocked()
	}
	normalizeState(&st)
	s.state = st
	logger.Infof("账本已加载: %s (余额=%.2f 持仓=%d)", s.path, st.Balance.Available, len(st.Positions))
	return nil
}

func normalizeState(st *State) {
	if st.Positions == nil {
		st.Positions = []Position{}
	}
	if st.Orders == nil {
		st.Orders = []Order{}
	}
	if st.Bills == nil {
		st.Bills = []Bill{}
	}
}

// Save 将全量状态写盘。写入走临时文件+rename，进程中途退出
// 不会留下无法解析的半截文件。
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.state.UpdatedAt = s.nowMillis()
	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "保存", Path: s.path, Err: err}
	}
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &PersistenceError{Op: "保存", Path: s.path, Err: err}
		}
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return &PersistenceError{Op: "保存", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "保存", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "保存", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "保存", Path: s.path, Err: err}
	}
	return nil
}

// Reset 丢弃全部历史，余额重置为 initialBalance。
func (s *Store) Reset(initialBalance float64) error {
	if initialBalance <= 0 {
		initialBalance = DefaultInitialBalance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = defaultState(initialBalance, s.nowMillis())
	if err := s.saveLocked(); err != nil {
		return err
	}
	logger.Infof("账本已重置，初始余额: %.2f USDT", initialBalance)
	return nil
}

// State 返回整个账本状态的深拷贝。
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Balance 返回余额副本。
func (s *Store) Balance() Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Balance
}

// Positions 返回持仓副本。
func (s *Store) Positions() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Position(nil), s.state.Positions...)
}

// Orders 返回订单副本（追加序）。
func (s *Store) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Order(nil), s.state.Orders...)
}

// Bills 返回账单副本（最新在前）。
func (s *Store) Bills() []Bill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Bill(nil), s.state.Bills...)
}

// InitialBalance 账本创建或最近一次重置时的初始资金。
func (s *Store) InitialBalance() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.InitialBalance
}

// Symbol 账本绑定的合约标的。
func (s *Store) Symbol() string { return s.symbol }

// Path 持久化文件位置。
func (s *Store) Path() string { return s.path }
