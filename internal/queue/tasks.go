package queue

import (
	"encoding/json"

	"github.com/dujiao-next/discount-engine/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskBatchSync 批次推送到平台任务
	TaskBatchSync = constants.TaskBatchSync
	// TaskOrderRedeem 订单核销入账任务
	TaskOrderRedeem = constants.TaskOrderRedeem
)

// BatchSyncPayload 批次同步任务载荷
type BatchSyncPayload struct {
	BatchID uint   `json:"batch_id"`
	BatchNo string `json:"batch_no"`
}

// OrderRedeemPayload 订单核销任务载荷
type OrderRedeemPayload struct {
	MerchantID string   `json:"merchant_id"`
	OrderID    string   `json:"order_id"`
	TotalPrice string   `json:"total_price"`
	Currency   string   `json:"currency"`
	Codes      []string `json:"codes"`
	Source     string   `json:"source"`
}

// NewBatchSyncTask 创建批次同步任务
func NewBatchSyncTask(payload BatchSyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchSync, body), nil
}

// NewOrderRedeemTask 创建订单核销任务
func NewOrderRedeemTask(payload OrderRedeemPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderRedeem, body), nil
}
