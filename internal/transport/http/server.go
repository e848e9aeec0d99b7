// Package transporthttp 提供账户查询与手工操作的 HTTP 接口。
package transporthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fathom/internal/decisionlog"
	"fathom/internal/exchange"
	"fathom/internal/logger"
	"fathom/internal/report"
	"fathom/internal/store/gormstore"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Server 封装 gin 路由与监听生命周期。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr      string
	Symbol    string
	Backend   exchange.Backend
	Decisions *decisionlog.Store
	Trades    *gormstore.TradeStore
	Reports   *report.Generator
}

// NewServer 构建 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Backend == nil {
		return nil, errors.New("http server requires an execution backend")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": cfg.Backend.Name()})
	})

	api := router.Group("/api")
	h := &handlers{cfg: cfg}
	api.GET("/account", h.account)
	api.GET("/positions", h.positions)
	api.GET("/bills", h.bills)
	api.GET("/risk", h.risk)
	api.GET("/statistics", h.statistics)
	api.GET("/decisions", h.decisions)
	api.GET("/orders", h.orders)
	api.GET("/trades", h.trades)
	api.POST("/orders", h.placeOrder)
	api.POST("/reset", h.reset)
	api.POST("/report", h.generateReport)

	return &Server{addr: cfg.Addr, router: router}, nil
}

type handlers struct {
	cfg ServerConfig
}

func (h *handlers) account(c *gin.Context) {
	assets, err := h.cfg.Backend.AccountAssets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": assets})
}

func (h *handlers) positions(c *gin.Context) {
	positions, err := h.cfg.Backend.Positions(c.Request.Context(), h.cfg.Symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": positions})
}

func (h *handlers) bills(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	bills, err := h.cfg.Backend.Bills(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bills})
}

func (h *handlers) risk(c *gin.Context) {
	risk, err := h.cfg.Backend.RiskSummary(c.Request.Context(), h.cfg.Symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": risk})
}

func (h *handlers) statistics(c *gin.Context) {
	provider, ok := h.cfg.Backend.(exchange.StatisticsProvider)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "当前后端不支持统计"})
		return
	}
	stats, err := provider.Statistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (h *handlers) decisions(c *gin.Context) {
	if h.cfg.Decisions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "决策日志未启用"})
		return
	}
	recs, err := h.cfg.Decisions.RecentDecisions(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs})
}

func (h *handlers) orders(c *gin.Context) {
	if h.cfg.Decisions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "订单日志未启用"})
		return
	}
	recs, err := h.cfg.Decisions.RecentOrders(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs})
}

func (h *handlers) trades(c *gin.Context) {
	if h.cfg.Trades == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "成交归档未启用"})
		return
	}
	trades, err := h.cfg.Trades.RecentTrades(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": trades})
}

type placeOrderPayload struct {
	Type     string `json:"type" binding:"required"`
	Size     string `json:"size" binding:"required"`
	Price    string `json:"price"`
	Leverage string `json:"leverage"`
}

// placeOrder 手工下单入口，与模型走同一套执行后端。
func (h *handlers) placeOrder(c *gin.Context) {
	var payload placeOrderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orderType, err := exchange.ParseOrderType(payload.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	size, err := decimal.NewFromString(payload.Size)
	if err != nil || size.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效订单数量"})
		return
	}
	price := decimal.Zero
	if payload.Price != "" {
		if price, err = decimal.NewFromString(payload.Price); err != nil || price.Sign() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效订单价格"})
			return
		}
	}
	leverage := decimal.Zero
	if payload.Leverage != "" {
		if leverage, err = decimal.NewFromString(payload.Leverage); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效杠杆"})
			return
		}
	}

	ack, err := h.cfg.Backend.PlaceOrder(c.Request.Context(), exchange.PlaceOrderRequest{
		Symbol:   h.cfg.Symbol,
		Type:     orderType,
		Size:     size,
		Price:    price,
		Leverage: leverage,
	})
	if err != nil {
		var unknownType *exchange.UnknownOrderTypeError
		if errors.As(err, &unknownType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ack})
}

type resetPayload struct {
	InitialBalance float64 `json:"initialBalance"`
}

func (h *handlers) reset(c *gin.Context) {
	resetter, ok := h.cfg.Backend.(exchange.Resetter)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "当前后端不支持重置"})
		return
	}
	var payload resetPayload
	_ = c.ShouldBindJSON(&payload)
	if err := resetter.Reset(c.Request.Context(), payload.InitialBalance); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// generateReport 按归档数据生成 HTML 复盘报告并返回文件路径。
func (h *handlers) generateReport(c *gin.Context) {
	if h.cfg.Reports == nil || h.cfg.Trades == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "报告生成未启用"})
		return
	}
	ctx := c.Request.Context()
	points, err := h.cfg.Trades.EquityCurve(ctx, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	trades, err := h.cfg.Trades.RecentTrades(ctx, 500)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	path, err := h.cfg.Reports.Generate(points, trades)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := fallback
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			v = n
		}
	}
	return v
}

// requestLogger 记录接口调用，便于追踪人工操作。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Router 暴露底层路由（测试用）。
func (s *Server) Router() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Infof("HTTP 服务已启动: %s", s.addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
