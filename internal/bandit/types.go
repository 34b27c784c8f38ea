package bandit

import "time"

// RegimeDefault 聚合后验：没有状态专属样本时的回退桶。
const RegimeDefault = "default"

// Posterior 单个（顾问, 行情状态）组合的 Beta 后验参数。
// Alpha 记成功（盈利建议），Beta 记失败，先验为 Beta(1,1)。
type Posterior struct {
	Provider  string
	Regime    string
	Alpha     float64
	Beta      float64
	UpdatedAt time.Time
}

// Mean 后验均值 α/(α+β)，用于报表展示，不用于采样。
func (p Posterior) Mean() float64 {
	total := p.Alpha + p.Beta
	if total <= 0 {
		return 0.5
	}
	return p.Alpha / total
}

// PosteriorStore 后验的持久化契约：进程重启后信任权重不清零。
type PosteriorStore interface {
	LoadPosteriors() ([]Posterior, error)
	SavePosterior(p Posterior) error
}
