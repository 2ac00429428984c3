package hedgehttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"hedgerd/internal/calc"
	"hedgerd/internal/hedger"
	"hedgerd/internal/instrument"
	"hedgerd/internal/store/hedgelog"
	"hedgerd/internal/volatility"

	"github.com/gin-gonic/gin"
)

// HedgeAPI is the controller slice the API needs.
type HedgeAPI interface {
	Start(target hedger.Target) error
	Stop(key string) error
	Status() []hedger.RunnerStatus
	Alerts(n int) []hedger.Alert
}

// Calculator is the analytics slice the API needs.
type Calculator interface {
	ImpliedVol(ctx context.Context, symbol string) (calc.IVResult, error)
	RealizedVol(ctx context.Context, symbol string, windowDays int) (volatility.Estimate, error)
	Analytics(ctx context.Context, symbol string) (calc.Snapshot, error)
}

// AlertHistory is the persisted-alert slice the API needs. The
// in-memory ring behind /alerts forgets on restart; history reads reach
// back through the store.
type AlertHistory interface {
	Recent(limit int) ([]hedgelog.AlertModel, error)
	RecentForKey(key string, limit int) ([]hedgelog.AlertModel, error)
}

type handlers struct {
	controller HedgeAPI
	calc       Calculator
	history    AlertHistory
}

func (h *handlers) register(g *gin.RouterGroup) {
	g.GET("/status", h.status)
	g.GET("/alerts", h.alerts)
	g.GET("/alerts/history", h.alertHistory)
	g.POST("/start", h.start)
	g.POST("/stop", h.stop)
	g.GET("/calc/iv", h.impliedVol)
	g.GET("/calc/rv", h.realizedVol)
	g.GET("/calc/snapshot", h.snapshot)
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"hedgers": h.controller.Status()})
}

func (h *handlers) alerts(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, gin.H{"alerts": h.controller.Alerts(limit)})
}

func (h *handlers) alertHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alert store not configured"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	var (
		rows []hedgelog.AlertModel
		err  error
	)
	if key := c.Query("key"); key != "" {
		rows, err = h.history.RecentForKey(key, limit)
	} else {
		rows, err = h.history.Recent(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": rows})
}

type startRequest struct {
	Key         string  `json:"key" binding:"required"`
	TargetDelta float64 `json:"target_delta"`
	Threshold   float64 `json:"threshold"`
	MaxOrderQty int64   `json:"max_order_qty" binding:"required,min=1"`
	Interval    string  `json:"interval"`
}

func (h *handlers) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target := hedger.Target{
		Key:         req.Key,
		TargetDelta: req.TargetDelta,
		Threshold:   req.Threshold,
		MaxOrderQty: req.MaxOrderQty,
	}
	if req.Interval != "" {
		interval, err := time.ParseDuration(req.Interval)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval: " + err.Error()})
			return
		}
		target.Interval = interval
	}
	if err := h.controller.Start(target); err != nil {
		switch {
		case errors.Is(err, hedger.ErrAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, instrument.ErrInvalidKey):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started", "key": req.Key})
}

type stopRequest struct {
	Key string `json:"key" binding:"required"`
}

func (h *handlers) stop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.controller.Stop(req.Key); err != nil {
		if errors.Is(err, hedger.ErrNotRunning) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "key": req.Key})
}

func (h *handlers) impliedVol(c *gin.Context) {
	symbol, ok := h.requireCalcSymbol(c)
	if !ok {
		return
	}
	res, err := h.calc.ImpliedVol(c.Request.Context(), symbol)
	if err != nil {
		respondCalcError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (h *handlers) realizedVol(c *gin.Context) {
	symbol, ok := h.requireCalcSymbol(c)
	if !ok {
		return
	}
	window := 0
	if raw := c.Query("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive integer"})
			return
		}
		window = parsed
	}
	res, err := h.calc.RealizedVol(c.Request.Context(), symbol, window)
	if err != nil {
		respondCalcError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (h *handlers) snapshot(c *gin.Context) {
	symbol, ok := h.requireCalcSymbol(c)
	if !ok {
		return
	}
	res, err := h.calc.Analytics(c.Request.Context(), symbol)
	if err != nil {
		respondCalcError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

func (h *handlers) requireCalcSymbol(c *gin.Context) (string, bool) {
	if h.calc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "calculators not configured"})
		return "", false
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return "", false
	}
	return symbol, true
}

// respondCalcError turns a failed calculation into an N/A payload: the
// request itself succeeded, the math has no answer.
func respondCalcError(c *gin.Context, err error) {
	if errors.Is(err, calc.ErrDataUnavailable) || errors.Is(err, volatility.ErrInsufficientData) {
		c.JSON(http.StatusOK, gin.H{"result": nil, "error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
