package api

import (
	"expensebot/middleware"

	"github.com/gin-gonic/gin"
)

// ownerID 请求对应的 owner_id：令牌身份优先，其次为配置的默认值
// 两者都为空时不按所有者过滤
func ownerID(c *gin.Context, fallback string) string {
	if id := middleware.GetCurrentUserID(c); id != "" {
		return id
	}
	return fallback
}
