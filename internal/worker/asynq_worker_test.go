package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dujiao-next/discount-engine/internal/platform"
	"github.com/dujiao-next/discount-engine/internal/provider"
	"github.com/dujiao-next/discount-engine/internal/queue"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestClassifyTaskError(t *testing.T) {
	require.NoError(t, classifyTaskError("test", service.ErrBatchNotFound))
	require.NoError(t, classifyTaskError("test", fmt.Errorf("wrap: %w", service.ErrMerchantNotFound)))

	retryable := fmt.Errorf("%w: %w", service.ErrPlatformSyncFailed, platform.ErrRequestFailed)
	err := classifyTaskError("test", retryable)
	require.ErrorIs(t, err, platform.ErrRequestFailed)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	rejected := fmt.Errorf("%w: %w", service.ErrPlatformSyncFailed, platform.ErrRejected)
	err = classifyTaskError("test", rejected)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, platform.ErrRejected)

	require.ErrorIs(t, classifyTaskError("test", service.ErrInvalidInput), asynq.SkipRetry)
}

func TestHandlersSkipInvalidPayloads(t *testing.T) {
	consumer := NewConsumer(&provider.Container{})

	task, err := queue.NewBatchSyncTask(queue.BatchSyncPayload{})
	require.NoError(t, err)
	require.NoError(t, consumer.handleBatchSync(context.Background(), task))

	redeem, err := queue.NewOrderRedeemTask(queue.OrderRedeemPayload{MerchantID: "shop.example.com"})
	require.NoError(t, err)
	require.NoError(t, consumer.handleOrderRedeem(context.Background(), redeem))

	broken := asynq.NewTask(queue.TaskOrderRedeem, []byte("{"))
	require.ErrorIs(t, consumer.handleOrderRedeem(context.Background(), broken), asynq.SkipRetry)

	var nilConsumer *Consumer
	require.NoError(t, nilConsumer.handleBatchSync(context.Background(), task))
}

func TestRegisterRoutesTaskTypes(t *testing.T) {
	mux := asynq.NewServeMux()
	NewConsumer(&provider.Container{}).Register(mux)
	task := asynq.NewTask(queue.TaskBatchSync, []byte(`{"batch_id":0}`))
	handler, pattern := mux.Handler(task)
	require.NotNil(t, handler)
	require.Equal(t, queue.TaskBatchSync, pattern)
}
