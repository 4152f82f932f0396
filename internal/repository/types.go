package repository

import "time"

// DiscountSetListFilter 查询折扣活动列表的过滤条件
type DiscountSetListFilter struct {
	Page       int
	PageSize   int
	MerchantID uint
	Search     string
	IsActive   *bool
}

// DiscountCodeListFilter 查询折扣码列表的过滤条件
type DiscountCodeListFilter struct {
	Page     int
	PageSize int
	SetID    uint
	BatchID  uint
	Code     string
	Revealed *bool
	Used     *bool
}

// PendingBatchFilter 待补偿同步批次的过滤条件
type PendingBatchFilter struct {
	UpdatedBefore time.Time
	MaxAttempts   int
	Limit         int
}
