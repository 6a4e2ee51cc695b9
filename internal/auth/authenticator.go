package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/account-api/internal/account"
)

// Principal は認証済みリクエストの主体を表します。ゼロ値は匿名です。
type Principal struct {
	Email string `json:"email"`
}

// IsAnonymous は主体が未認証かどうかを返します。
func (p Principal) IsAnonymous() bool {
	return p.Email == ""
}

// ErrInvalidCredentials は認証失敗を表します。
// アカウントが存在しない場合とパスワード不一致の場合を区別しません。
var ErrInvalidCredentials = errors.New("invalid email or password")

// CredentialSource はアカウントの検索を提供します。
type CredentialSource interface {
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
}

// Authenticator はメールアドレスとパスワードの組を検証します。
type Authenticator struct {
	accounts CredentialSource
	hasher   *Hasher
}

// NewAuthenticator は Authenticator を作成します。
func NewAuthenticator(accounts CredentialSource, hasher *Hasher) *Authenticator {
	return &Authenticator{accounts: accounts, hasher: hasher}
}

// Authenticate は認証に成功した場合のみ主体を返します。
// 失敗理由は常に ErrInvalidCredentials で、メールアドレスの存在は漏らしません。
// ストア障害は ErrInvalidCredentials とは別のエラーとして返します。
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	acc, err := a.accounts.FindByEmail(ctx, email)
	if err != nil {
		return Principal{}, fmt.Errorf("failed to look up account: %w", err)
	}
	if acc == nil {
		return Principal{}, ErrInvalidCredentials
	}
	if !a.hasher.Verify(password, acc.PasswordHash) {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{Email: acc.Email}, nil
}
