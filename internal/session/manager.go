package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/account-api/internal/account"
	"github.com/yourusername/account-api/internal/auth"
)

// AccountResolver はセッションに紐づくアカウントの存在確認に使用します。
type AccountResolver interface {
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
}

// Manager はセッションの発行・解決・破棄を提供します。
type Manager struct {
	store    Store
	accounts AccountResolver
	ttl      time.Duration
}

// NewManager は Manager を作成します。
func NewManager(store Store, accounts AccountResolver, ttl time.Duration) *Manager {
	return &Manager{store: store, accounts: accounts, ttl: ttl}
}

// Create は新しいセッションを発行し、不透明トークンを返します。
func (m *Manager) Create(ctx context.Context, email string) (string, error) {
	now := time.Now().UTC()
	record := &Record{
		Token:     uuid.NewString(),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Set(ctx, record); err != nil {
		return "", fmt.Errorf("failed to persist session: %w", err)
	}
	return record.Token, nil
}

// Resolve はトークンから主体を解決します。
// トークン未指定・レコード不在・期限切れ・アカウント削除済みのいずれの場合も
// エラーではなく匿名を返します。エラーはストア障害のみです。
func (m *Manager) Resolve(ctx context.Context, token string) (auth.Principal, error) {
	if token == "" {
		return auth.Principal{}, nil
	}

	record, err := m.store.Get(ctx, token)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("failed to load session: %w", err)
	}
	if record == nil {
		return auth.Principal{}, nil
	}

	if record.Expired(time.Now().UTC()) {
		_ = m.store.Delete(ctx, token)
		return auth.Principal{}, nil
	}

	// セッション作成後にアカウントが削除された場合は匿名として扱う
	acc, err := m.accounts.FindByEmail(ctx, record.Email)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("failed to resolve session account: %w", err)
	}
	if acc == nil {
		_ = m.store.Delete(ctx, token)
		return auth.Principal{}, nil
	}

	return auth.Principal{Email: acc.Email}, nil
}

// Destroy はセッションを破棄します。存在しないトークンでも成功します。
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
