package ensemble

import "errors"

// 错误分类。Provider 级失败在聚合层本地恢复，
// 只有聚合无法凑足法定人数时才升级为下列哨兵错误。
var (
	ErrProviderTimeout         = errors.New("provider timeout")
	ErrProviderInvalidResponse = errors.New("provider invalid response")
	ErrInsufficientProviders   = errors.New("insufficient providers")
	ErrEscalationExhausted     = errors.New("escalation exhausted")
)

// 失败记录的 kind 常量，和哨兵错误一一对应。
const (
	FailureInsufficientProviders = "INSUFFICIENT_PROVIDERS"
	FailureEscalationExhausted   = "ESCALATION_EXHAUSTED"
	FailureProviderError         = "PROVIDER_ERROR"
)
