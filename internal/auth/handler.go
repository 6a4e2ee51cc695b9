package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionCookieName はセッショントークンを運ぶクッキーの名前です。
const SessionCookieName = "account_session"

// SessionManager はセッションの発行・解決・破棄を提供します。
// 実装は internal/session です。
type SessionManager interface {
	Create(ctx context.Context, email string) (string, error)
	Resolve(ctx context.Context, token string) (Principal, error)
	Destroy(ctx context.Context, token string) error
}

// Handler はログイン・ログアウト・プロフィールのハンドラー群です。
type Handler struct {
	authenticator *Authenticator
	sessions      SessionManager
	cookieMaxAge  int
	secureCookie  bool
}

// NewHandler は Handler を作成します。
func NewHandler(authenticator *Authenticator, sessions SessionManager, cookieMaxAge int, secureCookie bool) *Handler {
	return &Handler{
		authenticator: authenticator,
		sessions:      sessions,
		cookieMaxAge:  cookieMaxAge,
		secureCookie:  secureCookie,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は POST /api/login のハンドラーです。
// 認証に成功すると新しいセッションを発行し、既存のセッションは破棄します。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "email と password を JSON で送ってください",
			"error":   err.Error(),
		})
		return
	}

	principal, err := h.authenticator.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			// アカウントの存在有無を漏らさないため、理由は常に同一
			c.JSON(http.StatusUnauthorized, gin.H{
				"message": "メールアドレスまたはパスワードが正しくありません",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "認証処理に失敗しました",
			"error":   err.Error(),
		})
		return
	}

	// ログインのたびにセッションIDを再生成する
	if old, err := c.Cookie(SessionCookieName); err == nil && old != "" {
		_ = h.sessions.Destroy(c.Request.Context(), old)
	}

	token, err := h.sessions.Create(c.Request.Context(), principal.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "セッションの保存に失敗しました",
			"error":   err.Error(),
		})
		return
	}

	h.setSessionCookie(c, token, h.cookieMaxAge)
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("ログインしました: %s", principal.Email),
		"user":    principal,
	})
}

// Logout は GET /api/logout のハンドラーです。
// 未ログイン状態で呼ばれても成功を返します（冪等）。
func (h *Handler) Logout(c *gin.Context) {
	token, err := c.Cookie(SessionCookieName)
	if err == nil && token != "" {
		if err := h.sessions.Destroy(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"message": "セッションの削除に失敗しました",
				"error":   err.Error(),
			})
			return
		}
	}

	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "ログアウトしました"})
}

// Profile は GET /api/profile のハンドラーです。
func (h *Handler) Profile(c *gin.Context) {
	token, _ := c.Cookie(SessionCookieName)
	principal, err := h.sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "セッションの確認に失敗しました",
			"error":   err.Error(),
		})
		return
	}
	if principal.IsAnonymous() {
		c.JSON(http.StatusBadRequest, gin.H{"message": "ログインまたは登録してください"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("%s のユーザー情報", principal.Email),
		"user":    principal,
	})
}

func (h *Handler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookieName, token, maxAge, "/", "", h.secureCookie, true)
}
