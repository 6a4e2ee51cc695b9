// Package account はアカウントエンティティと、その永続化・HTTP操作を提供します。
package account

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// emailPattern はメールアドレスの形式チェックに使用するパターンです。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// MinPasswordLength はパスワードの最小文字数です。
const MinPasswordLength = 6

// Account はメールアドレスで識別されるアカウントを表します。
// PasswordHash は bcrypt ハッシュのみを保持し、JSONには含めません。
type Account struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DomainCount はドメインごとのアカウント数の集計結果です。
type DomainCount struct {
	Domain     string `json:"domain"`
	UsersCount int64  `json:"users_count"`
}

// Filter は複数件操作の対象を絞り込む条件です。
// Emails と Domain の両方が指定された場合は AND 条件になります。
type Filter struct {
	Emails []string `json:"emails,omitempty"`
	Domain string   `json:"domain,omitempty"`
}

// IsZero はフィルタが未指定かどうかを返します。
func (f Filter) IsZero() bool {
	return len(f.Emails) == 0 && f.Domain == ""
}

// Patch は部分更新の内容です。nil のフィールドは変更しません。
// PasswordHash にはハッシュ化済みの値のみを設定してください。
type Patch struct {
	Email        *string
	PasswordHash *string
}

// ValidateEmail はメールアドレスの形式を検証します。
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return &ValidationError{Field: "email", Reason: "email is required"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Reason: fmt.Sprintf("%s is not a valid email", email)}
	}
	return nil
}

// ValidatePassword はパスワードの制約を検証します。
func ValidatePassword(password string) error {
	if password == "" {
		return &ValidationError{Field: "password", Reason: "password is required"}
	}
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("password must be at least %d characters long", MinPasswordLength)}
	}
	return nil
}

// Domain はメールアドレスの @ 以降を返します。
func Domain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
