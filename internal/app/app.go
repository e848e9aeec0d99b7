// Package app 负责应用级编排：按配置组装依赖并启动调度与 HTTP 服务。
package app

import (
	"context"
	"fmt"
	"time"

	"fathom/internal/ai"
	"fathom/internal/config"
	"fathom/internal/decisionlog"
	"fathom/internal/exchange"
	"fathom/internal/exchange/sim"
	"fathom/internal/exchange/weex"
	"fathom/internal/logger"
	"fathom/internal/market"
	"fathom/internal/notifier"
	"fathom/internal/paper"
	"fathom/internal/report"
	"fathom/internal/scheduler"
	"fathom/internal/store/gormstore"
	"fathom/internal/trader"
	transporthttp "fathom/internal/transport/http"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// App 持有组装完成的全部组件。
type App struct {
	cfg *config.Config

	ledger    *paper.Store
	backend   exchange.Backend
	trader    *trader.Trader
	http      *transporthttp.Server
	decisions *decisionlog.Store
	trades    *gormstore.TradeStore
	sched     *scheduler.AlignedScheduler
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	a := &App{cfg: cfg}

	// 实盘客户端既是行情来源，也可能是执行后端。
	liveClient, err := weex.NewClient(cfg.Weex)
	if cfg.Trading.Mode == "live" && err != nil {
		return nil, fmt.Errorf("初始化 weex 客户端失败: %w", err)
	}

	fetcher := market.NewFetcher(cfg.Market.Symbol)

	// Weex 凭据缺失时回退到 Binance 最新价（仅影响纸面模式）。
	var priceSource exchange.PriceSource
	if err == nil {
		priceSource = exchange.NewCachedPriceSource(liveClient)
	} else {
		logger.Warnf("weex 客户端不可用，行情回退 Binance: %v", err)
		priceSource = exchange.NewCachedPriceSource(fetcher)
	}

	switch cfg.Trading.Mode {
	case "live":
		a.backend = liveClient
	default:
		// 纸面账本：显式句柄，启动时加载一次。
		ledger := paper.NewStore(cfg.Trading.LedgerPath, cfg.Trading.InitialBalance,
			paper.WithSymbol(cfg.Trading.Symbol))
		if err := ledger.Load(); err != nil {
			return nil, fmt.Errorf("加载账本失败: %w", err)
		}
		a.ledger = ledger
		a.backend = sim.NewBackend(ledger, priceSource)
	}

	a.decisions, err = decisionlog.NewStore(cfg.Storage.DecisionLogPath)
	if err != nil {
		return nil, fmt.Errorf("初始化决策日志失败: %w", err)
	}
	a.trades, err = gormstore.NewTradeStore(cfg.Storage.TradeDBPath)
	if err != nil {
		return nil, fmt.Errorf("初始化成交归档失败: %w", err)
	}

	var notify notifier.TextNotifier = notifier.Noop{}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		notify = notifier.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
	}

	generator := ai.NewSignalGenerator(&ai.ChatClient{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		MaxRetries:  cfg.AI.MaxRetries,
	})

	a.trader = trader.New(cfg.Trading.Symbol, a.backend, fetcher, generator, trader.Options{
		Decisions: a.decisions,
		Trades:    a.trades,
		Notifier:  notify,
		Leverage:  decimal.NewFromInt(int64(cfg.Trading.Leverage)),
		Model:     cfg.AI.Model,
	})

	a.sched = scheduler.NewAlignedScheduler(ctx,
		time.Duration(cfg.Schedule.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Schedule.OffsetSeconds)*time.Second)
	a.sched.RunImmediately = cfg.Schedule.RunImmediately

	a.http, err = transporthttp.NewServer(transporthttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Symbol:    cfg.Trading.Symbol,
		Backend:   a.backend,
		Decisions: a.decisions,
		Trades:    a.trades,
		Reports:   report.NewGenerator(a.trades, cfg.Storage.ReportDir),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}
	return a, nil
}

// Backend 暴露执行后端（测试与脚本用）。
func (a *App) Backend() exchange.Backend { return a.backend }

// Ledger 暴露纸面账本句柄（simulated 模式之外为 nil）。
func (a *App) Ledger() *paper.Store { return a.ledger }

// Run 启动调度循环与 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		a.sched.Start(func() {
			cycleCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			if err := a.trader.RunCycle(cycleCtx); err != nil {
				logger.Errorf("决策周期失败: %v", err)
			}
		})
		return nil
	})

	return group.Wait()
}

// Close 刷盘并关闭存储。
func (a *App) Close() {
	if a.ledger != nil {
		if err := a.ledger.Save(); err != nil {
			logger.Warnf("账本落盘失败: %v", err)
		}
	}
	if a.decisions != nil {
		if err := a.decisions.Close(); err != nil {
			logger.Warnf("关闭决策日志失败: %v", err)
		}
	}
	if a.trades != nil {
		if err := a.trades.Close(); err != nil {
			logger.Warnf("关闭成交归档失败: %v", err)
		}
	}
}
