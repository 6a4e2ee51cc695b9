// Package auth は認証・認可機能を提供します。
package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher はパスワードの bcrypt ハッシュ化と検証を提供します。
type Hasher struct {
	cost int
}

// NewHasher は Hasher を作成します。cost が範囲外の場合はデフォルトコストを使います。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードからソルト付きハッシュを生成します。
// 入力は常に平文でなければなりません。既にハッシュ化された値を渡さないでください。
func (h *Hasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify は平文パスワードを保存済みハッシュと照合します。
// ハッシュが不正な形式の場合も含め、一致しなければ false を返します。
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
