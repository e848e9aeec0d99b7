// Package trader 驱动完整的决策回路：行情 → 风险画像 → 模型信号 → 下单。
package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fathom/internal/ai"
	"fathom/internal/decisionlog"
	"fathom/internal/exchange"
	"fathom/internal/logger"
	"fathom/internal/market"
	"fathom/internal/notifier"
	"fathom/internal/store/gormstore"

	"github.com/shopspring/decimal"
)

// SystemPrompt 模型的角色设定。输出约束由 schema 校验兜底，
// prompt 只负责引导。
const SystemPrompt = `你是一名专业的 BTC 合约交易分析师。根据给出的市场数据、账户风险画像与当前持仓，
输出一个 JSON 交易信号，包含 analysis（marketTrend/positionStatus/riskAssessment）、
signal（action/confidence/reasoning）、execution（hasOrder/orders）与 riskWarning 字段。
订单类型编码：1-开多, 2-开空, 3-平多, 4-平空。数量与价格使用字符串。只输出 JSON，不要附加说明。`

// Trader 每轮调度执行一次完整决策。
type Trader struct {
	symbol    string
	backend   exchange.Backend
	market    *market.Fetcher
	generator *ai.SignalGenerator
	model     string

	decisions *decisionlog.Store
	trades    *gormstore.TradeStore
	notify    notifier.TextNotifier

	leverage decimal.Decimal
}

// Options 可选依赖。日志与归档缺省为不落库，通知缺省为空实现。
type Options struct {
	Decisions *decisionlog.Store
	Trades    *gormstore.TradeStore
	Notifier  notifier.TextNotifier
	Leverage  decimal.Decimal
	Model     string
}

func New(symbol string, backend exchange.Backend, fetcher *market.Fetcher, generator *ai.SignalGenerator, opts Options) *Trader {
	notify := opts.Notifier
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &Trader{
		symbol:    symbol,
		backend:   backend,
		market:    fetcher,
		generator: generator,
		model:     opts.Model,
		decisions: opts.Decisions,
		trades:    opts.Trades,
		notify:    notify,
		leverage:  opts.Leverage,
	}
}

// RunCycle 执行一轮决策。任何阶段失败都只记录并返回错误，
// 不影响下一轮调度。
func (t *Trader) RunCycle(ctx context.Context) error {
	logger.Infof("开始决策周期: 标的=%s 后端=%s", t.symbol, t.backend.Name())

	snapshot, err := t.market.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("拉取市场数据失败: %w", err)
	}
	risk, err := t.backend.RiskSummary(ctx, t.symbol)
	if err != nil {
		return fmt.Errorf("获取账户风险画像失败: %w", err)
	}
	positions, err := t.backend.Positions(ctx, t.symbol)
	if err != nil {
		return fmt.Errorf("获取持仓失败: %w", err)
	}

	report := t.buildReport(snapshot, risk, positions)

	signal, err := t.generator.Generate(ctx, SystemPrompt, report)
	rec := decisionlog.DecisionRecord{
		Timestamp: time.Now().UnixMilli(),
		Symbol:    t.symbol,
		Model:     t.model,
		System:    SystemPrompt,
		User:      report,
	}
	if err != nil {
		rec.Error = err.Error()
		t.appendDecision(ctx, rec, nil)
		return err
	}
	t.appendDecision(ctx, rec, &signal)
	t.uploadAILog(ctx, signal)

	logger.InfoBlock(signal.Format())

	if !signal.Execution.HasOrder {
		logger.Infof("信号为观望 (%s)，本轮不执行订单", signal.Signal.Action)
		t.sampleEquity(ctx)
		return nil
	}
	err = t.executeOrders(ctx, signal)
	t.sampleEquity(ctx)
	return err
}

// aiLogUploader 后端可选能力：把决策摘要回传交易所侧（仅实盘后端实现）。
type aiLogUploader interface {
	UploadAILog(ctx context.Context, model, stage string, detail map[string]any)
}

func (t *Trader) uploadAILog(ctx context.Context, signal ai.Signal) {
	uploader, ok := t.backend.(aiLogUploader)
	if !ok {
		return
	}
	uploader.UploadAILog(ctx, t.model, "signal", map[string]any{
		"action":     string(signal.Signal.Action),
		"confidence": string(signal.Signal.Confidence),
		"hasOrder":   signal.Execution.HasOrder,
		"orders":     len(signal.Execution.Orders),
	})
}

// sampleEquity 每轮采样一次权益，供报表绘制曲线。
func (t *Trader) sampleEquity(ctx context.Context) {
	if t.trades == nil {
		return
	}
	assets, err := t.backend.AccountAssets(ctx)
	if err != nil {
		logger.Warnf("权益采样失败: %v", err)
		return
	}
	for _, asset := range assets {
		if asset.CoinName != "USDT" {
			continue
		}
		point := gormstore.EquityPointModel{
			Timestamp: time.Now().UnixMilli(),
			Balance:   asset.Available.Add(asset.Frozen).Round(2).String(),
			Equity:    asset.Equity.Round(2).String(),
		}
		if err := t.trades.RecordEquityPoint(ctx, point); err != nil {
			logger.Warnf("权益采样写入失败: %v", err)
		}
		return
	}
}

// buildReport 组装喂给模型的市场报告。
func (t *Trader) buildReport(snapshot market.Snapshot, risk exchange.RiskSummary, positions []exchange.Position) string {
	riskJSON, _ := json.MarshalIndent(risk, "", "  ")
	posJSON, _ := json.MarshalIndent(positions, "", "  ")
	return fmt.Sprintf("%s\n账户风险画像:\n%s\n\n当前持仓:\n%s\n", snapshot.Format(), riskJSON, posJSON)
}

// executeOrders 逐个执行信号中的订单。单个订单失败不阻断后续订单，
// 错误聚合后返回。
func (t *Trader) executeOrders(ctx context.Context, signal ai.Signal) error {
	var firstErr error
	for i, detail := range signal.Execution.Orders {
		req, err := detail.OrderRequest(t.symbol)
		if err != nil {
			logger.Errorf("订单#%d 解析失败: %v", i+1, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if req.Type.IsOpen() && t.leverage.Sign() > 0 {
			req.Leverage = t.leverage
		}

		ack, err := t.backend.PlaceOrder(ctx, req)
		orderRec := decisionlog.OrderRecord{
			Timestamp: time.Now().UnixMilli(),
			Symbol:    t.symbol,
			OrderType: req.Type.String(),
			Size:      req.Size.String(),
			Price:     detail.Price,
		}
		if err != nil {
			logger.Errorf("订单#%d 执行失败 (type=%s size=%s): %v", i+1, req.Type, req.Size, err)
			orderRec.Error = err.Error()
			t.appendOrder(ctx, orderRec)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		orderRec.OrderID = ack.OrderID
		if !req.Type.IsOpen() {
			orderRec.PnL = ack.PnL.Round(2).String()
		}
		t.appendOrder(ctx, orderRec)
		t.archiveTrade(ctx, req, detail, ack, signal)
		t.notifyFill(req, detail, ack)
	}
	return firstErr
}

func (t *Trader) appendDecision(ctx context.Context, rec decisionlog.DecisionRecord, signal *ai.Signal) {
	if t.decisions == nil {
		return
	}
	if _, err := t.decisions.AppendDecision(ctx, rec, signal); err != nil {
		logger.Warnf("决策日志写入失败: %v", err)
	}
}

func (t *Trader) appendOrder(ctx context.Context, rec decisionlog.OrderRecord) {
	if t.decisions == nil {
		return
	}
	if err := t.decisions.AppendOrder(ctx, rec); err != nil {
		logger.Warnf("订单日志写入失败: %v", err)
	}
}

func (t *Trader) archiveTrade(ctx context.Context, req exchange.PlaceOrderRequest, detail ai.OrderDetail, ack exchange.OrderAck, signal ai.Signal) {
	if t.trades == nil {
		return
	}
	signalJSON, _ := json.Marshal(signal.Signal)
	trade := gormstore.TradeModel{
		Timestamp:  time.Now().UnixMilli(),
		Symbol:     t.symbol,
		OrderType:  req.Type.String(),
		Side:       req.Type.Side(),
		Size:       req.Size.String(),
		Price:      detail.Price,
		PnL:        ack.PnL.Round(2).String(),
		OrderID:    ack.OrderID,
		SignalJSON: signalJSON,
	}
	if err := t.trades.RecordTrade(ctx, trade); err != nil {
		logger.Warnf("成交归档失败: %v", err)
	}
}

func (t *Trader) notifyFill(req exchange.PlaceOrderRequest, detail ai.OrderDetail, ack exchange.OrderAck) {
	text := fmt.Sprintf("📈 *%s* %s\n类型: %s\n数量: %s BTC\n价格: %s\n订单: `%s`",
		t.symbol, detail.TypeDescription, req.Type, req.Size, detail.Price, ack.OrderID)
	if !req.Type.IsOpen() {
		text += fmt.Sprintf("\n盈亏: %s USDT", ack.PnL.Round(2))
	}
	if err := t.notify.SendText(text); err != nil {
		logger.Warnf("Telegram 通知失败: %v", err)
	}
}
