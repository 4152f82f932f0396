package constants

// 折扣类型常量
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// 折扣适用范围常量
const (
	TargetScopeAll         = "all"
	TargetScopeCollections = "collections"
	TargetScopeProducts    = "products"
)

// 最低消费门槛常量
const (
	MinRequirementNone     = "none"
	MinRequirementSubtotal = "subtotal"
	MinRequirementQuantity = "quantity"
)

// 批次类型常量
const (
	BatchKindInitial      = "initial"
	BatchKindSupplemental = "supplemental"
)

// 批次同步状态常量
const (
	BatchSyncPending = "pending"
	BatchSyncSynced  = "synced"
	BatchSyncFailed  = "failed"
)

// 订单归因来源常量
const (
	AttributionSourceWebhook = "webhook"
	AttributionSourcePoll    = "poll"
	AttributionSourceStream  = "stream"
)

// 按钮样式常量
const (
	ButtonStyleStandard = "standard"
	ButtonStyleCustom   = "custom"
)

// 码生成相关常量
const (
	CodeAlphabet          = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	MaxCodeLength         = 64
	MaxCodePrefixLength   = 32
	DefaultCodeLength     = 8
	DefaultUsableQuantity = 1
)

// 揭示状态参数
const (
	RevealStatusHidden   = 0
	RevealStatusRevealed = 1
)

// 异步任务类型常量
const (
	TaskBatchSync   = "batch:sync"
	TaskOrderRedeem = "order:redeem"
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)
