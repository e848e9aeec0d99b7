package paper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FreshStateWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := NewStore(path, 1000)
	require.NoError(t, s.Load())

	bal := s.Balance()
	assert.Equal(t, 1000.0, bal.Total)
	assert.Equal(t, 1000.0, bal.Available)
	assert.Equal(t, 0.0, bal.Frozen)
	assert.Equal(t, 1000.0, s.InitialBalance())

	// Load 对缺失文件立即落盘默认状态。
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestLoad_CorruptFileDegradesSoft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewStore(path, 500)
	require.NoError(t, s.Load())
	assert.Equal(t, 500.0, s.Balance().Available)

	// 损坏文件被新状态覆盖。
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st State
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, 500.0, st.InitialBalance)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	s := NewStore(path, 1000, WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	require.NoError(t, s.Load())

	_, err := s.OpenPosition(SideLong, dec("0.015"), dec("43210.5"), dec("10"))
	require.NoError(t, err)
	_, err = s.OpenPosition(SideShort, dec("0.02"), dec("43000"), dec("20"))
	require.NoError(t, err)
	_, err = s.ClosePosition(SideShort, dec("0.01"), dec("42500"))
	require.NoError(t, err)

	want := s.State()

	reloaded := NewStore(path, 1000)
	require.NoError(t, reloaded.Load())
	got := reloaded.State()

	// 序列化再反序列化后逐字段一致。
	assert.Equal(t, want.Balance, got.Balance)
	assert.Equal(t, want.InitialBalance, got.InitialBalance)
	assert.Equal(t, want.CreatedAt, got.CreatedAt)
	require.Len(t, got.Positions, len(want.Positions))
	for i := range want.Positions {
		assert.True(t, want.Positions[i].Size.Equal(got.Positions[i].Size))
		assert.True(t, want.Positions[i].EntryPrice.Equal(got.Positions[i].EntryPrice))
		assert.True(t, want.Positions[i].OpenValue.Equal(got.Positions[i].OpenValue))
		assert.True(t, want.Positions[i].OpenFee.Equal(got.Positions[i].OpenFee))
		assert.Equal(t, want.Positions[i].Side, got.Positions[i].Side)
	}
	require.Len(t, got.Orders, 3)
	require.Len(t, got.Bills, 3)
	assert.Equal(t, want.Bills[0].Type, got.Bills[0].Type)
	assert.True(t, want.Bills[0].Amount.Equal(got.Bills[0].Amount))
}

func TestReset_DiscardsHistory(t *testing.T) {
	s := newTestStore(t, 1000)
	_, err := s.OpenPosition(SideLong, dec("0.01"), dec("50000"), dec("20"))
	require.NoError(t, err)

	require.NoError(t, s.Reset(2000))

	assert.Equal(t, 2000.0, s.Balance().Available)
	assert.Equal(t, 2000.0, s.InitialBalance())
	assert.Empty(t, s.Positions())
	assert.Empty(t, s.Orders())
	assert.Empty(t, s.Bills())
}

func TestAccessors_DefensiveCopies(t *testing.T) {
	s := newTestStore(t, 1000)
	_, err := s.OpenPosition(SideLong, dec("0.01"), dec("50000"), dec("20"))
	require.NoError(t, err)

	positions := s.Positions()
	positions[0].Size = dec("999")
	assert.Equal(t, "0.01", s.Positions()[0].Size.String())

	st := s.State()
	st.Balance.Available = -1
	st.Orders[0].Type = "9"
	assert.GreaterOrEqual(t, s.Balance().Available, 0.0)
	assert.Equal(t, "1", s.Orders()[0].Type)
}

func TestSave_AtomicNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "ledger.json"), 1000)
	require.NoError(t, s.Load())
	require.NoError(t, s.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ledger.json", entries[0].Name())
}

func TestSave_FailurePropagatesAndIsRetryable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	s := NewStore(path, 1000)
	require.NoError(t, s.Load())

	// 用同名目录占住目标路径：rename 必然失败，
	// Save 返回 PersistenceError，但内存状态保留。
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	_, err := s.OpenPosition(SideLong, dec("0.01"), dec("50000"), dec("20"))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	// 交易已入账，单独重试 Save 即可。
	require.Len(t, s.Positions(), 1)
	require.NoError(t, os.Remove(path))
	require.NoError(t, s.Save())
}
