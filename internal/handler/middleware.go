package handler

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"leadledger/internal/config"
	"leadledger/internal/model"
	"leadledger/pkg/response"
)

// 上下文键，认证中间件写入，handler 读取
const (
	ContextKeyUserID = "userID"
	ContextKeyRole   = "userRole"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// JWTAuthMiddleware 认证中间件，解析 Authorization 头中的 Bearer Token
func JWTAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, response.CodeUnauthorized, "缺少认证信息")
			c.Abort()
			return
		}

		// 格式: Bearer <token>
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, response.CodeUnauthorized, "认证格式错误")
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("不支持的签名算法: %v", t.Header["alg"])
			}
			return []byte(cfg.Auth.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			response.Error(c, response.CodeUnauthorized, "无效的 Token")
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Error(c, response.CodeUnauthorized, "无效的 Token")
			c.Abort()
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || userID <= 0 {
			response.Error(c, response.CodeUnauthorized, "无效的 Token")
			c.Abort()
			return
		}

		roleStr, _ := claims["role"].(string)

		// 【关键点】userID 和角色写入上下文，后续 handler 通过 currentUserID/currentRole 读取
		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyRole, model.Role(roleStr))

		c.Next()
	}
}

// RequireAdminMiddleware 管理员权限中间件，必须挂在 JWTAuthMiddleware 之后
func RequireAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentRole(c) != model.RoleAdmin {
			response.Error(c, response.CodeForbidden, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentUserID 从上下文读取当前登录用户 ID
func currentUserID(c *gin.Context) int64 {
	if v, ok := c.Get(ContextKeyUserID); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}

// currentRole 从上下文读取当前登录用户角色
func currentRole(c *gin.Context) model.Role {
	if v, ok := c.Get(ContextKeyRole); ok {
		if role, ok := v.(model.Role); ok {
			return role
		}
	}
	return ""
}
