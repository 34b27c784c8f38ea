package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arbiter/internal/agent"
	arbcfg "arbiter/internal/config"
	"arbiter/internal/gateway/notifier"
	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"
	"arbiter/internal/scheduler"
	"arbiter/internal/store/gormstore"
	statushttp "arbiter/internal/transport/http/status"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→装配依赖→驱动代理循环与状态服务。
type App struct {
	cfg        *arbcfg.Config
	machine    *agent.Machine
	statusHTTP *statushttp.Server
	notify     *notifier.Dispatcher
	roster     *provider.Roster
	store      *gormstore.GormStore
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *arbcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动状态服务与代理循环，阻塞到 ctx 取消或代理熔断停机。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	a.notify.Announce(fmt.Sprintf("🚀 代理启动 mode=%s assets=%v", a.cfg.Agent.Mode, a.cfg.Agent.Assets))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.machine.Telemetry().Run(ctx)
		return nil
	})

	if a.statusHTTP != nil {
		group.Go(func() error {
			if err := a.statusHTTP.Start(ctx); err != nil {
				return fmt.Errorf("status server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		interval := time.Duration(a.cfg.Agent.CycleIntervalSeconds) * time.Second
		sched := scheduler.NewCycleScheduler(ctx, interval)
		sched.Start(func() bool {
			if err := a.machine.RunCycle(ctx); err != nil {
				if errors.Is(err, agent.ErrAgentStopped) || errors.Is(err, agent.ErrKillSwitchTriggered) {
					return false
				}
				logger.Errorf("代理周期异常: %v", err)
			}
			return !a.machine.Stopped()
		})
		return nil
	})

	return group.Wait()
}

// Machine 暴露底层状态机（供测试与回放工具使用）。
func (a *App) Machine() *agent.Machine {
	if a == nil {
		return nil
	}
	return a.machine
}

// Close 释放名册监听与数据库连接，可重复调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.roster != nil {
		if err := a.roster.Close(); err != nil {
			logger.Warnf("关闭名册监听失败: %v", err)
		}
		a.roster = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("关闭数据库失败: %v", err)
		}
		a.store = nil
	}
}
