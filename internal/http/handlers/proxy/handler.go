package proxy

import "github.com/dujiao-next/discount-engine/internal/provider"

// Handler 店铺前台代理接口处理器
// 说明：响应结构由前台脚本直接消费，不使用统一响应信封。
type Handler struct {
	*provider.Container
}

// New 创建代理处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
