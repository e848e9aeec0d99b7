// Package weex 封装 Weex 合约 REST API，实现实盘执行后端与行情来源。
package weex

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"fathom/internal/config"
	"fathom/internal/exchange"
	"fathom/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Client 实盘 REST 客户端。签名方式：HMAC-SHA256 over
// method+path+query+body+timestamp，十六进制编码。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	secretKey  string
	symbol     string

	now func() time.Time
}

var (
	_ exchange.Backend     = (*Client)(nil)
	_ exchange.PriceSource = (*Client)(nil)
)

// NewClient 从配置构建实盘客户端。
func NewClient(cfg config.WeexConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = "https://api.weex.com"
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 weex.base_url 失败: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("weex.api_key 与 weex.secret_key 不能为空")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	symbol := strings.TrimSpace(cfg.Symbol)
	if symbol == "" {
		symbol = "cmt_btcusdt"
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     strings.TrimSpace(cfg.APIKey),
		secretKey:  strings.TrimSpace(cfg.SecretKey),
		symbol:     symbol,
		now:        time.Now,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Name() string { return "weex" }

// sign 生成请求签名。query 需按键名升序拼接，与服务端口径保持一致。
func (c *Client) sign(method, path, query, body, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(method + path + query + body + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

func sortedQuery(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}
	return "?" + strings.Join(parts, "&")
}

// doRequest 发送签名请求并返回原始响应体。
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("weex client 未初始化")
	}

	var bodyStr string
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
		bodyStr = string(buf)
		body = bytes.NewReader(buf)
	}

	endpoint := *c.baseURL
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + path
	query := sortedQuery(params)
	if query != "" {
		endpoint.RawQuery = query[1:]
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-TIMESTAMP", timestamp)
	req.Header.Set("X-SIGNATURE", c.sign(strings.ToUpper(method), path, query, bodyStr, timestamp))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 weex 失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("读取 weex 响应失败: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "msg").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, fmt.Errorf("weex 返回错误(%s): %s", resp.Status, msg)
	}
	if code := gjson.GetBytes(data, "code"); code.Exists() && code.String() != "0" && code.String() != "00000" {
		return nil, fmt.Errorf("weex 业务错误[%s]: %s", code.String(), gjson.GetBytes(data, "msg").String())
	}
	return data, nil
}

// Last 实现 PriceSource：返回标的最新成交价。
func (c *Client) Last(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/market/ticker", params, nil)
	if err != nil {
		return decimal.Zero, err
	}
	last := gjson.GetBytes(data, "data.last")
	if !last.Exists() {
		last = gjson.GetBytes(data, "last")
	}
	price, err := decimal.NewFromString(last.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("解析 ticker.last 失败: %w", err)
	}
	return price, nil
}

// PlaceOrder 下单。市价单 match_price=1，限价单携带价格。
func (c *Client) PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (exchange.OrderAck, error) {
	matchPrice := "1"
	price := ""
	if req.Price.Sign() > 0 {
		matchPrice = "0"
		price = req.Price.String()
	}
	payload := map[string]any{
		"symbol":      req.Symbol,
		"client_oid":  req.ClientOID,
		"size":        req.Size.String(),
		"type":        req.Type.String(),
		"order_type":  "0",
		"match_price": matchPrice,
		"price":       price,
	}
	logger.Infof("[实盘] 下单: type=%s size=%s match_price=%s", req.Type, req.Size, matchPrice)

	data, err := c.doRequest(ctx, http.MethodPost, "/api/v1/order/place", nil, payload)
	if err != nil {
		return exchange.OrderAck{}, err
	}
	return exchange.OrderAck{
		OrderID:   gjson.GetBytes(data, "data.order_id").String(),
		ClientOID: gjson.GetBytes(data, "data.client_oid").String(),
	}, nil
}

// AccountAssets 合约账户资产。
func (c *Client) AccountAssets(ctx context.Context) ([]exchange.AccountAsset, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/account/assets", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []exchange.AccountAsset
	for _, item := range gjson.GetBytes(data, "data").Array() {
		out = append(out, exchange.AccountAsset{
			CoinName:     item.Get("coinName").String(),
			Available:    decimalField(item, "available"),
			Frozen:       decimalField(item, "frozen"),
			Equity:       decimalField(item, "equity"),
			UnrealizePnl: decimalField(item, "unrealizePnl"),
		})
	}
	return out, nil
}

// Positions 当前持仓。强平价由交易所给出，原样透传。
func (c *Client) Positions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/position/single", params, nil)
	if err != nil {
		return nil, err
	}
	var out []exchange.Position
	for _, item := range gjson.GetBytes(data, "data").Array() {
		out = append(out, exchange.Position{
			ID:             item.Get("id").String(),
			Symbol:         item.Get("symbol").String(),
			Side:           item.Get("side").String(),
			Size:           decimalField(item, "size"),
			EntryPrice:     decimalField(item, "entryPrice"),
			Leverage:       decimalField(item, "leverage"),
			MarginMode:     item.Get("margin_mode").String(),
			SeparatedMode:  item.Get("separated_mode").String(),
			CreatedTime:    item.Get("created_time").Int(),
			OpenValue:      decimalField(item, "open_value"),
			OpenFee:        decimalField(item, "open_fee"),
			UnrealizePnl:   decimalField(item, "unrealizePnl"),
			LiquidatePrice: decimalField(item, "liquidatePrice"),
		})
	}
	return out, nil
}

// Bills 账单历史。
func (c *Client) Bills(ctx context.Context, limit int) ([]exchange.Bill, error) {
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	data, err := c.doRequest(ctx, http.MethodGet, "/api/v1/account/bills", params, nil)
	if err != nil {
		return nil, err
	}
	var out []exchange.Bill
	for _, item := range gjson.GetBytes(data, "data.items").Array() {
		out = append(out, exchange.Bill{
			ID:      item.Get("billId").String(),
			Symbol:  item.Get("symbol").String(),
			Type:    item.Get("businessType").String(),
			Amount:  decimalField(item, "amount"),
			Balance: decimalField(item, "balance"),
			Fee:     decimalField(item, "fillFee"),
			Time:    item.Get("ctime").Int(),
		})
	}
	return out, nil
}

// RiskSummary 实盘风险画像：由资产与持仓接口拼装。
func (c *Client) RiskSummary(ctx context.Context, symbol string) (exchange.RiskSummary, error) {
	assets, err := c.AccountAssets(ctx)
	if err != nil {
		return exchange.RiskSummary{}, err
	}
	positions, err := c.Positions(ctx, symbol)
	if err != nil {
		return exchange.RiskSummary{}, err
	}

	var available, frozen, upnl decimal.Decimal
	for _, a := range assets {
		if a.CoinName != "USDT" {
			continue
		}
		available = a.Available
		frozen = a.Frozen
		upnl = a.UnrealizePnl
	}
	total := available.Add(frozen)
	accountValue := total.Add(upnl)

	positionValue := decimal.Zero
	leverage := decimal.NewFromInt(20)
	for i, p := range positions {
		positionValue = positionValue.Add(p.OpenValue)
		if i == 0 {
			leverage = p.Leverage
		}
	}

	marginRatio := decimal.Zero
	if total.Sign() > 0 {
		marginRatio = frozen.Div(total).Mul(decimal.NewFromInt(100))
	}
	leverageRatio := decimal.Zero
	if accountValue.Sign() > 0 {
		leverageRatio = positionValue.Div(accountValue)
	}

	return exchange.RiskSummary{
		Symbol:       symbol,
		Timestamp:    c.now(),
		AccountValue: accountValue.Round(2),
		Profit: exchange.ProfitSummary{
			Unrealized: upnl.Round(2),
		},
		Balance: exchange.BalanceSummary{
			Total:     total.Round(2),
			Available: available.Round(2),
			Frozen:    frozen.Round(2),
		},
		Margin: exchange.MarginSummary{
			Used:      frozen.Round(2),
			Available: available.Round(2),
			Ratio:     marginRatio.Round(2),
		},
		Leverage: exchange.LeverageSummary{
			Current: leverage,
			Mode:    "SHARED",
		},
		LeverageRatio: leverageRatio.Round(2),
		Positions: exchange.PositionTotals{
			Count:              len(positions),
			TotalValue:         positionValue.Round(2),
			TotalUnrealizedPnl: upnl.Round(2),
		},
	}, nil
}

// UploadAILog 上传 AI 决策日志到交易所侧（尽力而为，失败只告警）。
func (c *Client) UploadAILog(ctx context.Context, model, stage string, detail map[string]any) {
	payload := map[string]any{
		"model":  model,
		"stage":  stage,
		"detail": detail,
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/v1/ai/log", nil, payload); err != nil {
		logger.Warnf("AI 日志上传失败: %v", err)
	}
}

func decimalField(item gjson.Result, key string) decimal.Decimal {
	v, err := decimal.NewFromString(item.Get(key).String())
	if err != nil {
		return decimal.Zero
	}
	return v
}
