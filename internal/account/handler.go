package account

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Store は Handler が必要とするアカウントストアの操作群です。
// 実装は Repository で、テストではスタブに差し替えます。
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByEmails(ctx context.Context, emails []string) ([]Account, error)
	Insert(ctx context.Context, account *Account) error
	InsertMany(ctx context.Context, accounts []Account) error
	UpdateByEmail(ctx context.Context, email string, patch Patch) (*Account, error)
	UpdateMany(ctx context.Context, filter Filter, patch Patch) (int64, error)
	ReplaceByEmail(ctx context.Context, email string, replacement Account) (*Account, error)
	DeleteByEmail(ctx context.Context, email string) (*Account, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
	ListAll(ctx context.Context) ([]Account, error)
	ListEmails(ctx context.Context) ([]string, error)
	ListPage(ctx context.Context, cursor string, limit int) ([]Account, bool, error)
	AggregateByDomain(ctx context.Context) ([]DomainCount, error)
}

// PasswordHasher は平文パスワードのハッシュ化を提供します。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Handler はアカウント操作のハンドラー群です。
type Handler struct {
	store            Store
	hasher           PasswordHasher
	defaultBatchSize int
}

// NewHandler は Handler を作成します。
func NewHandler(store Store, hasher PasswordHasher, defaultBatchSize int) *Handler {
	return &Handler{
		store:            store,
		hasher:           hasher,
		defaultBatchSize: defaultBatchSize,
	}
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updates struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Register は POST /api/register のハンドラーです。
func (h *Handler) Register(c *gin.Context) {
	h.createOne(c, "ユーザーを登録しました")
}

// InsertOne は POST /api/insert-one のハンドラーです。
func (h *Handler) InsertOne(c *gin.Context) {
	h.createOne(c, "ユーザーを追加しました")
}

func (h *Handler) createOne(c *gin.Context, successMessage string) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	account, err := h.newAccount(req.Email, req.Password)
	if err != nil {
		badRequest(c, err)
		return
	}

	// 事前チェックで分かりやすく弾く。競合時は UNIQUE 制約が最終的に防ぐ
	existing, err := h.store.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		badRequest(c, err)
		return
	}
	if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "ユーザーは既に存在します"})
		return
	}

	if err := h.store.Insert(c.Request.Context(), account); err != nil {
		if _, ok := IsDuplicate(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{"message": "ユーザーは既に存在します"})
			return
		}
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": successMessage,
		"user":    gin.H{"email": account.Email},
	})
}

// InsertMany は POST /api/insert-many のハンドラーです。
// 1件でも重複があればバッチ全体を拒否し、重複を全件報告します。
func (h *Handler) InsertMany(c *gin.Context) {
	var reqs []credentials
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "ユーザーの配列を JSON で送ってください",
			"error":   err.Error(),
		})
		return
	}

	emails := make([]string, 0, len(reqs))
	accounts := make([]Account, 0, len(reqs))
	for _, req := range reqs {
		account, err := h.newAccount(req.Email, req.Password)
		if err != nil {
			badRequest(c, err)
			return
		}
		emails = append(emails, account.Email)
		accounts = append(accounts, *account)
	}

	existing, err := h.store.FindByEmails(c.Request.Context(), emails)
	if err != nil {
		badRequest(c, err)
		return
	}
	if len(existing) > 0 {
		duplicates := make([]string, 0, len(existing))
		for _, acc := range existing {
			duplicates = append(duplicates, acc.Email)
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"message":    "一部のユーザーは既に存在します",
			"duplicates": duplicates,
		})
		return
	}

	if err := h.store.InsertMany(c.Request.Context(), accounts); err != nil {
		if dup, ok := IsDuplicate(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"message":    "一部のユーザーは既に存在します",
				"duplicates": dup.Emails,
			})
			return
		}
		badRequest(c, err)
		return
	}

	created := make([]gin.H, 0, len(accounts))
	for _, acc := range accounts {
		created = append(created, gin.H{"email": acc.Email})
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "ユーザーを作成しました",
		"users":   created,
	})
}

type updateOneRequest struct {
	Email   string  `json:"email" binding:"required"`
	Updates updates `json:"updates" binding:"required"`
}

// UpdateOne は PATCH /api/update-one のハンドラーです。
func (h *Handler) UpdateOne(c *gin.Context) {
	var req updateOneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	patch, err := h.newPatch(req.Updates)
	if err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.store.UpdateByEmail(c.Request.Context(), req.Email, patch)
	if err != nil {
		if dup, ok := IsDuplicate(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"message":    "メールアドレスが重複しています",
				"duplicates": dup.Emails,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "更新に失敗しました",
			"error":   err.Error(),
		})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "ユーザーが見つかりません"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ユーザーを更新しました",
		"user":    updated,
	})
}

type updateManyRequest struct {
	Filter  Filter  `json:"filter" binding:"required"`
	Updates updates `json:"updates" binding:"required"`
}

// UpdateMany は PATCH /api/update-many のハンドラーです。
func (h *Handler) UpdateMany(c *gin.Context) {
	var req updateManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	patch, err := h.newPatch(req.Updates)
	if err != nil {
		badRequest(c, err)
		return
	}

	count, err := h.store.UpdateMany(c.Request.Context(), req.Filter, patch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "更新に失敗しました",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "ユーザーを更新しました",
		"modifiedCount": count,
	})
}

type replaceOneRequest struct {
	Email   string      `json:"email" binding:"required"`
	NewData credentials `json:"newData" binding:"required"`
}

// ReplaceOne は PUT /api/replace-one のハンドラーです。
// レコード全体を置き換えるため、パスワードは常に再ハッシュされます。
func (h *Handler) ReplaceOne(c *gin.Context) {
	var req replaceOneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	replacement, err := h.newAccount(req.NewData.Email, req.NewData.Password)
	if err != nil {
		badRequest(c, err)
		return
	}

	replaced, err := h.store.ReplaceByEmail(c.Request.Context(), req.Email, *replacement)
	if err != nil {
		if dup, ok := IsDuplicate(err); ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"message":    "メールアドレスが重複しています",
				"duplicates": dup.Emails,
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "置換に失敗しました",
			"error":   err.Error(),
		})
		return
	}
	if replaced == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "ユーザーが見つかりません"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ユーザーを置き換えました",
		"user":    replaced,
	})
}

type deleteOneRequest struct {
	Email string `json:"email" binding:"required"`
}

// DeleteOne は DELETE /api/delete-one のハンドラーです。
func (h *Handler) DeleteOne(c *gin.Context) {
	var req deleteOneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	deleted, err := h.store.DeleteByEmail(c.Request.Context(), req.Email)
	if err != nil {
		badRequest(c, err)
		return
	}
	if deleted == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "ユーザーが見つかりません"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "ユーザーを削除しました",
		"deletedUser": gin.H{"email": deleted.Email},
	})
}

type deleteManyRequest struct {
	Filter Filter `json:"filter" binding:"required"`
}

// DeleteMany は DELETE /api/delete-many のハンドラーです。
// フィルタに一致する全件を削除し、削除件数を返します。
func (h *Handler) DeleteMany(c *gin.Context) {
	var req deleteManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	count, err := h.store.DeleteMany(c.Request.Context(), req.Filter)
	if err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "ユーザーを削除しました",
		"deletedCount": count,
	})
}

// List は GET /api/userslist のハンドラーです。パスワードは含まれません。
func (h *Handler) List(c *gin.Context) {
	accounts, err := h.store.ListAll(c.Request.Context())
	if err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ユーザー一覧を取得しました",
		"users":   accounts,
	})
}

// Projection は GET /api/projection のハンドラーです。メールアドレスのみ返します。
func (h *Handler) Projection(c *gin.Context) {
	emails, err := h.store.ListEmails(c.Request.Context())
	if err != nil {
		badRequest(c, err)
		return
	}

	usersList := make([]gin.H, 0, len(emails))
	for _, email := range emails {
		usersList = append(usersList, gin.H{"email": email})
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "ユーザー一覧を作成しました",
		"usersList": usersList,
	})
}

// Cursor は GET /api/cursor のハンドラーです。
// cursor は前ページ最後のメールアドレス、batchSize は1ページの件数です。
func (h *Handler) Cursor(c *gin.Context) {
	batchSize := h.defaultBatchSize
	if raw := c.Query("batchSize"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			batchSize = parsed
		}
	}

	accounts, hasMore, err := h.store.ListPage(c.Request.Context(), c.Query("cursor"), batchSize)
	if err != nil {
		badRequest(c, err)
		return
	}

	users := make([]gin.H, 0, len(accounts))
	for _, acc := range accounts {
		users = append(users, gin.H{"email": acc.Email})
	}

	response := gin.H{
		"users":   users,
		"hasMore": hasMore,
	}
	if hasMore && len(accounts) > 0 {
		response["nextCursor"] = accounts[len(accounts)-1].Email
	}
	c.JSON(http.StatusOK, response)
}

// Stats は GET /api/stats のハンドラーです。
// ドメインごとのアカウント数を件数の降順で返します。
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.store.AggregateByDomain(c.Request.Context())
	if err != nil {
		badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "ドメイン別ユーザー統計",
		"stats":   stats,
	})
}

// newAccount は入力を検証し、パスワードをハッシュ化したアカウントを作成します。
func (h *Handler) newAccount(email, password string) (*Account, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := h.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	return &Account{Email: email, PasswordHash: hash}, nil
}

// newPatch は更新内容を検証し、パスワードが含まれる場合のみ再ハッシュします。
func (h *Handler) newPatch(u updates) (Patch, error) {
	var patch Patch
	if u.Email != nil {
		if err := ValidateEmail(*u.Email); err != nil {
			return Patch{}, err
		}
		patch.Email = u.Email
	}
	if u.Password != nil {
		if err := ValidatePassword(*u.Password); err != nil {
			return Patch{}, err
		}
		hash, err := h.hasher.Hash(*u.Password)
		if err != nil {
			return Patch{}, err
		}
		patch.PasswordHash = &hash
	}
	return patch, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": "不正なリクエストです",
		"error":   err.Error(),
	})
}
