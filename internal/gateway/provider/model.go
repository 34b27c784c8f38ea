package provider

import "context"

// Tier 区分低成本一阶段顾问与高成本二阶段顾问。
type Tier string

const (
	TierPhase1 Tier = "phase1"
	TierPhase2 Tier = "phase2"
)

// Role 用于 debate 模式的角色标记。
type Role string

const (
	RoleNone  Role = ""
	RoleBull  Role = "bull"
	RoleBear  Role = "bear"
	RoleJudge Role = "judge"
)

type ChatPayload struct {
	System    string
	User      string
	MaxTokens int
}

// AdvisorProvider 是单个顾问后端的统一调用契约。
type AdvisorProvider interface {
	ID() string
	Enabled() bool
	Tier() Tier
	Role() Role

	Query(ctx context.Context, payload ChatPayload) (string, error)
}
