package types

// Decision 准入判定结果
// 放在公共类型包，避免 limiter/core/api 之间的循环依赖
type Decision struct {
	Allowed       bool   // 是否放行请求
	Remaining     int64  // 当前窗口剩余配额
	RetryAfterSec int64  // 建议重试时间(秒)
	Reason        string // 判定原因
	Err           error  // 错误信息(如有)
}
