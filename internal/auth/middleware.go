package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextPrincipalKey は、ハンドラー間で認証済み主体を共有するためのキーです。
const ContextPrincipalKey = "auth.principal"

// RequireLogin は有効なセッションを要求するミドルウェアを返します。
// 主体を解決できないリクエストは保護対象のハンドラーに到達しません。
func RequireLogin(sessions SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(SessionCookieName)

		principal, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"message": "セッションの確認に失敗しました",
				"error":   err.Error(),
			})
			return
		}
		if principal.IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "ログインが必要です",
			})
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

// CurrentPrincipal は RequireLogin が格納した主体を取り出します。
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	value, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}
