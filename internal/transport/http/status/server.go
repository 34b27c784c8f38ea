package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"arbiter/internal/agent"
	"arbiter/internal/bandit"
	"arbiter/internal/ensemble"
	"arbiter/internal/logger"
	"arbiter/internal/perf"

	"github.com/gin-gonic/gin"
)

// Server 只读状态服务：循环状态、遥测、决策历史、信任后验、绩效。
// 纯展示面，不接受任何写操作。
type Server struct {
	addr   string
	router *gin.Engine
}

// DecisionReader 决策历史的只读查询。
type DecisionReader interface {
	GetDecision(id string) (*ensemble.Decision, error)
	ListDecisions(assetPair string, limit int) ([]ensemble.Decision, error)
}

// ServerConfig 状态服务依赖。
type ServerConfig struct {
	Addr      string
	Machine   *agent.Machine
	Decisions DecisionReader
	Tracker   *perf.Tracker
	Sampler   *bandit.Sampler
	Breakers  func() map[string]string
}

// NewServer 构建状态服务。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Machine == nil {
		return nil, errors.New("status server requires the agent machine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9982"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/status")
	api.GET("/cycle", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Machine.Snapshot())
	})
	api.GET("/telemetry", func(c *gin.Context) {
		q := cfg.Machine.Telemetry()
		q.Drain()
		c.JSON(http.StatusOK, gin.H{
			"events":  q.Recent(),
			"dropped": q.Dropped(),
		})
	})
	api.GET("/rejections", func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg.Machine.Rejections().Snapshot())
	})

	if cfg.Decisions != nil {
		api.GET("/decisions", func(c *gin.Context) {
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
			list, err := cfg.Decisions.ListDecisions(c.Query("asset"), limit)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, list)
		})
		api.GET("/decisions/:id", func(c *gin.Context) {
			d, err := cfg.Decisions.GetDecision(c.Param("id"))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, d)
		})
	}
	if cfg.Tracker != nil {
		api.GET("/performance", func(c *gin.Context) {
			m := cfg.Tracker.Snapshot()
			c.JSON(http.StatusOK, gin.H{
				"total_trades":       m.TotalTrades,
				"winning_trades":     m.WinningTrades,
				"losing_trades":      m.LosingTrades,
				"win_rate":           m.WinRate(),
				"total_pnl":          m.TotalPnL.String(),
				"total_fees":         m.TotalFees.String(),
				"current_streak":     m.CurrentStreak,
				"best_streak":        m.BestStreak,
				"worst_streak":       m.WorstStreak,
				"consecutive_losses": m.ConsecutiveLosses(),
				"profit_factor":      m.ProfitFactor(),
			})
		})
	}
	if cfg.Sampler != nil {
		api.GET("/weights", func(c *gin.Context) {
			c.JSON(http.StatusOK, cfg.Sampler.Snapshot())
		})
	}
	if cfg.Breakers != nil {
		api.GET("/breakers", func(c *gin.Context) {
			c.JSON(http.StatusOK, cfg.Breakers())
		})
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动服务直到 ctx 取消或出错。
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
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
