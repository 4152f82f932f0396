package webhook

import "github.com/dujiao-next/discount-engine/internal/provider"

// Handler 平台 Webhook 处理器
type Handler struct {
	*provider.Container
}

// New 创建 Webhook 处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
