package console

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDHeader 请求ID透传头
const requestIDHeader = "X-Request-ID"

// requestIDMiddleware 创建请求ID中间件，缺失时生成
func (c *Console) requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.Request.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx.Set("request_id", requestID)
		ctx.Writer.Header().Set(requestIDHeader, requestID)

		c.logger.Debug("收到请求",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"request_id", requestID)

		ctx.Next()
	}
}

// corsMiddleware 创建CORS中间件
func (c *Console) corsMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		ctx.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		ctx.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		ctx.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, Origin, Accept, X-Request-ID")
		ctx.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}

		ctx.Next()
	}
}

// authMiddleware 创建令牌鉴权中间件。
// 本地工具默认不鉴权，仅在配置了令牌时启用
func (c *Console) authMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := ctx.Request.Header.Get("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(token), []byte(c.config.AuthToken)) != 1 {
			c.logger.Warn("拒绝未授权请求", "path", ctx.Request.URL.Path)
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		ctx.Next()
	}
}
