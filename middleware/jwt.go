package middleware

import (
	"errors"
	"strings"
	"sync"
	"time"

	"expensebot/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ctxSubjectKey 上下文中保存调用方身份的键
const ctxSubjectKey = "subject"

var (
	jwtMu     sync.RWMutex
	jwtSecret []byte
	jwtExpire time.Duration
)

// Claims 令牌声明，Subject 即消费记录的 owner_id
type Claims struct {
	jwt.RegisteredClaims
}

// InitJWT 读取签名密钥，密钥为空时 JWTAuth 放行所有请求
func InitJWT(cfg *config.Config) {
	jwtMu.Lock()
	defer jwtMu.Unlock()
	jwtSecret = []byte(cfg.Security.JWTSecret)
	jwtExpire = cfg.Security.JWTExpireTime
	if jwtExpire <= 0 {
		jwtExpire = 24 * time.Hour
	}
}

func secret() []byte {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return jwtSecret
}

// AuthEnabled 是否配置了签名密钥
func AuthEnabled() bool {
	return len(secret()) > 0
}

// GenerateToken 为 subject 签发令牌，ttl <= 0 时使用配置的有效期
func GenerateToken(subject string, ttl time.Duration) (string, error) {
	key := secret()
	if len(key) == 0 {
		return "", errors.New("JWT 密钥未配置")
	}
	if ttl <= 0 {
		jwtMu.RLock()
		ttl = jwtExpire
		jwtMu.RUnlock()
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "expensebot",
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ParseToken 校验并解析令牌
func ParseToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token 为空")
	}
	key := secret()
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("不支持的签名算法")
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("无效的 token")
	}
	return claims, nil
}

// JWTAuth 校验 Authorization: Bearer <token>
// 未配置密钥时不做校验
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !AuthEnabled() {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			abortUnauthorized(c, "缺少认证信息")
			return
		}
		claims, err := ParseToken(strings.TrimSpace(tokenString))
		if err != nil {
			abortUnauthorized(c, "认证失败，请重新登录")
			return
		}
		c.Set(ctxSubjectKey, claims.Subject)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(401, gin.H{"code": 401, "message": message})
}

// GetCurrentUserID 当前调用方身份，未认证时返回空串
func GetCurrentUserID(c *gin.Context) string {
	return c.GetString(ctxSubjectKey)
}
