package bandit

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"arbiter/internal/logger"
)

// Sampler Thompson 采样器：每次决策前从各顾问的 Beta 后验抽一个
// 胜率样本当权重，天然兼顾探索与利用。后验按行情状态分桶，
// 趋势市里灵的顾问不必在震荡市里也享受高权重。
type Sampler struct {
	mu    sync.Mutex
	posts map[string]*Posterior // key: provider + "/" + regime
	rng   *rand.Rand
	store PosteriorStore
}

// NewSampler 构造采样器并从 store 预热历史后验。store 可为 nil（纯内存）。
func NewSampler(store PosteriorStore) *Sampler {
	s := &Sampler{
		posts: make(map[string]*Posterior),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		store: store,
	}
	if store != nil {
		posts, err := store.LoadPosteriors()
		if err != nil {
			logger.Warnf("加载历史后验失败，从均匀先验起步: %v", err)
			return s
		}
		for _, p := range posts {
			p := p
			s.posts[key(p.Provider, p.Regime)] = &p
		}
		logger.Infof("加载 %d 条信任后验", len(posts))
	}
	return s
}

func key(provider, regime string) string { return provider + "/" + regime }

// SampleWeights 为给定顾问集合采样一组信任权重。
// 没有该状态后验的顾问回退到 default 桶，再没有则用先验 Beta(1,1)。
// 返回的是原始样本，归一化由聚合层完成。
func (s *Sampler) SampleWeights(regime string, providers []string) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(providers))
	for _, id := range providers {
		p := s.lookup(id, regime)
		w := s.sampleBeta(p.Alpha, p.Beta)
		if w < 1e-6 {
			w = 1e-6
		}
		out[id] = w
	}
	return out
}

// ExpectedWeights 返回后验均值（确定性），供状态页和批量复盘展示。
func (s *Sampler) ExpectedWeights(regime string, providers []string) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(providers))
	for _, id := range providers {
		out[id] = s.lookup(id, regime).Mean()
	}
	return out
}

// UpdateFromOutcome 用一笔已平仓交易的结果更新参与顾问的后验。
// 状态桶与 default 桶同时更新，后验落库失败只记日志不影响决策链路。
func (s *Sampler) UpdateFromOutcome(provider, regime string, win bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range regimeBuckets(regime) {
		p := s.ensure(provider, r)
		if win {
			p.Alpha++
		} else {
			p.Beta++
		}
		p.UpdatedAt = time.Now()
		if s.store != nil {
			if err := s.store.SavePosterior(*p); err != nil {
				logger.Warnf("后验落库失败 provider=%s regime=%s: %v", provider, r, err)
			}
		}
	}
}

// Snapshot 导出全部后验的副本，供状态页展示。
func (s *Sampler) Snapshot() []Posterior {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Posterior, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, *p)
	}
	return out
}

func regimeBuckets(regime string) []string {
	if regime == "" || regime == RegimeDefault {
		return []string{RegimeDefault}
	}
	return []string{regime, RegimeDefault}
}

func (s *Sampler) lookup(provider, regime string) *Posterior {
	if regime != "" {
		if p, ok := s.posts[key(provider, regime)]; ok {
			return p
		}
	}
	if p, ok := s.posts[key(provider, RegimeDefault)]; ok {
		return p
	}
	return &Posterior{Provider: provider, Regime: RegimeDefault, Alpha: 1, Beta: 1}
}

func (s *Sampler) ensure(provider, regime string) *Posterior {
	k := key(provider, regime)
	p, ok := s.posts[k]
	if !ok {
		p = &Posterior{Provider: provider, Regime: regime, Alpha: 1, Beta: 1}
		s.posts[k] = p
	}
	return p
}

// sampleBeta 通过两次 Gamma 采样得到 Beta 样本：X/(X+Y)。
func (s *Sampler) sampleBeta(alpha, beta float64) float64 {
	if alpha <= 0 {
		alpha = 1
	}
	if beta <= 0 {
		beta = 1
	}
	x := s.sampleGamma(alpha)
	y := s.sampleGamma(beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma Marsaglia-Tsang 挤压法，shape<1 时用幂变换提升。
func (s *Sampler) sampleGamma(shape float64) float64 {
	if shape < 1 {
		u := s.rng.Float64()
		for u == 0 {
			u = s.rng.Float64()
		}
		return s.sampleGamma(shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := s.rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
