package shared

import (
	"strconv"
	"strings"

	"github.com/dujiao-next/discount-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ParseUintParam 读取路径参数中的正整数 ID，失败时直接写入 400 响应。
func ParseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		RespondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return 0, false
	}
	return uint(id), true
}

// QueryBool 解析布尔查询参数，未传返回 nil。
func QueryBool(c *gin.Context, name string) (*bool, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		RespondError(c, response.CodeBadRequest, "error.bad_request", err)
		return nil, false
	}
	return &value, true
}
