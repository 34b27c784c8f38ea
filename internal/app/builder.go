package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arbiter/internal/agent"
	"arbiter/internal/bandit"
	arbcfg "arbiter/internal/config"
	"arbiter/internal/ensemble"
	"arbiter/internal/gateway/binance"
	"arbiter/internal/gateway/notifier"
	"arbiter/internal/gateway/paper"
	"arbiter/internal/gateway/provider"
	"arbiter/internal/logger"
	"arbiter/internal/perf"
	"arbiter/internal/store/gormstore"
	statushttp "arbiter/internal/transport/http/status"
)

// MarketStack 行情侧的两个能力：上下文构建与即时报价。
type MarketStack struct {
	Builder agentMarketBuilder
	Price   paper.PriceFn
}

type agentMarketBuilder interface {
	Build(ctx context.Context, assetPair string) (ensemble.MarketContext, error)
}

type AppBuilder struct {
	cfg *arbcfg.Config

	storeFn    func(arbcfg.StoreConfig) (*gormstore.GormStore, error)
	registryFn func(arbcfg.AIConfig) (*provider.Registry, error)
	marketFn   func(arbcfg.MarketConfig) (*MarketStack, error)
	notifierFn func(arbcfg.NotifyConfig) (*notifier.Dispatcher, error)
	statusFn   func(statushttp.ServerConfig) (*statushttp.Server, error)

	deskOverride *paper.Desk
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *arbcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    buildStore,
		registryFn: provider.BuildRegistry,
		marketFn:   buildMarketStack,
		notifierFn: buildNotifier,
		statusFn:   statushttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildStore(cfg arbcfg.StoreConfig) (*gormstore.GormStore, error) {
	return gormstore.NewGormStore(cfg.Path)
}

func buildMarketStack(cfg arbcfg.MarketConfig) (*MarketStack, error) {
	builder := binance.NewContextBuilder(binance.Config{
		RESTBaseURL: cfg.RESTBaseURL,
		Interval:    cfg.KlineInterval,
		Limit:       cfg.KlineLimit,
	})
	return &MarketStack{Builder: builder, Price: builder.LastPrice}, nil
}

// buildNotifier 按 notify.channels 的顺序装配投递通道。
func buildNotifier(cfg arbcfg.NotifyConfig) (*notifier.Dispatcher, error) {
	var channels []notifier.TextNotifier
	for _, name := range cfg.Channels {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "telegram":
			if !cfg.Telegram.Enabled {
				continue
			}
			channels = append(channels, notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
		case "webhook":
			if !cfg.Webhook.Enabled {
				continue
			}
			channels = append(channels, notifier.NewWebhook(
				cfg.Webhook.URL,
				cfg.Webhook.EventHeader,
				cfg.Webhook.MaxAttempts,
				time.Duration(cfg.Webhook.BaseBackoffMs)*time.Millisecond,
				time.Duration(cfg.Webhook.MaxBackoffMs)*time.Millisecond,
				time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second,
			))
		case "":
			continue
		default:
			return nil, fmt.Errorf("unknown notify channel %q", name)
		}
	}
	if len(channels) == 0 {
		logger.Warnf("未配置任何通知通道，决策审批事件只会落日志")
	}
	return notifier.NewDispatcher(channels...), nil
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	store, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	registry, err := b.registryFn(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("装配顾问失败: %w", err)
	}
	logger.Infof("✓ 已装配 %d 个顾问: %v", len(registry.IDs()), registry.IDs())

	roster, err := provider.NewRoster(cfg.AI.RosterPath, registry)
	if err != nil {
		return nil, fmt.Errorf("加载顾问名册失败: %w", err)
	}

	dispatcher := ensemble.NewDispatcher(
		cfg.AI.TimeoutSeconds,
		cfg.AI.BreakerThreshold,
		time.Duration(cfg.AI.BreakerCooldownS)*time.Second,
	)

	model, err := ensemble.LoadStackingModel(cfg.AI.StackingModelPath)
	if err != nil {
		return nil, fmt.Errorf("加载 stacking 模型失败: %w", err)
	}
	aggregator, err := ensemble.NewAggregator(
		cfg.Ensemble.VotingStrategy,
		cfg.Ensemble.MinProviders,
		cfg.Ensemble.ReasoningMaxBytes,
		model,
	)
	if err != nil {
		return nil, err
	}

	sampler := bandit.NewSampler(store)
	tracker := perf.NewTracker(store)

	notify, err := b.notifierFn(cfg.Notify)
	if err != nil {
		return nil, err
	}

	reports := &perf.ReportWriter{Dir: cfg.App.ReportDir}
	tracker.OnReview = func(r perf.Review) {
		if path, err := reports.Write(r, tracker.RecentOutcomes()); err != nil {
			logger.Warnf("复盘报表生成失败: %v", err)
		} else if path != "" {
			logger.Infof("复盘报表已生成: %s", path)
		}
		notify.Announce(r.Summary())
	}

	marketStack, err := b.marketFn(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("初始化行情适配器失败: %w", err)
	}

	desk := b.deskOverride
	if desk == nil {
		desk = paper.NewDesk(paper.Config{}, marketStack.Price)
	}

	orchestrator := &ensemble.Orchestrator{
		Mode:       cfg.Agent.Mode,
		Registry:   registry,
		Dispatcher: dispatcher,
		Escalation: &ensemble.EscalationController{
			Dispatcher:         dispatcher,
			Aggregator:         aggregator,
			QuorumSize:         cfg.Ensemble.Phase1QuorumSize,
			AgreementThreshold: cfg.Ensemble.EscalationThreshold,
		},
		Debate: &ensemble.DebateCombiner{
			Dispatcher:        dispatcher,
			ReasoningMaxBytes: cfg.Ensemble.ReasoningMaxBytes,
		},
		Veto: &ensemble.VetoGate{
			Enabled:        cfg.Ensemble.Veto.Enabled,
			BaseThreshold:  cfg.Ensemble.Veto.BaseThreshold,
			TargetAccuracy: cfg.Ensemble.Veto.TargetAccuracy,
			Store:          store,
		},
		Weights: sampler,
		Store:   store,
	}
	if roster != nil {
		orchestrator.RosterWeights = func() map[string]float64 {
			return roster.Snapshot().Weights
		}
	}

	telemetry := agent.NewTelemetryQueue(cfg.Agent.TelemetryQueueSize)
	machine := agent.NewMachine(agent.Deps{
		Config:       cfg.Agent,
		Orchestrator: orchestrator,
		Tracker:      tracker,
		Weights:      sampler,
		Dispatcher:   notify,
		Market:       marketStack.Builder,
		Risk:         desk,
		Platform:     desk,
		Memory:       desk,
		Monitor:      desk,
		Lookup:       store,
		VetoLog:      store,
		Telemetry:    telemetry,
	})

	statusHTTP, err := b.statusFn(statushttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Machine:   machine,
		Decisions: store,
		Tracker:   tracker,
		Sampler:   sampler,
		Breakers:  dispatcher.BreakerStates,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化状态服务失败: %w", err)
	}

	return &App{
		cfg:        cfg,
		machine:    machine,
		statusHTTP: statusHTTP,
		notify:     notify,
		roster:     roster,
		store:      store,
	}, nil
}

func WithStore(fn func(arbcfg.StoreConfig) (*gormstore.GormStore, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.storeFn = fn
		}
	}
}

func WithRegistry(fn func(arbcfg.AIConfig) (*provider.Registry, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.registryFn = fn
		}
	}
}

func WithMarketStack(fn func(arbcfg.MarketConfig) (*MarketStack, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.marketFn = fn
		}
	}
}

func WithNotifier(fn func(arbcfg.NotifyConfig) (*notifier.Dispatcher, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifierFn = fn
		}
	}
}

func WithDesk(desk *paper.Desk) AppBuilderOption {
	return func(b *AppBuilder) {
		if desk != nil {
			b.deskOverride = desk
		}
	}
}
