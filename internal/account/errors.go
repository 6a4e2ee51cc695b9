package account

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound は指定されたメールアドレスのアカウントが存在しない場合に返されます。
var ErrNotFound = errors.New("account not found")

// ValidationError は入力値の制約違反を表します。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// DuplicateError はメールアドレスの一意性制約違反を表します。
// Emails には衝突した全メールアドレスが入ります。
type DuplicateError struct {
	Emails []string
}

func (e *DuplicateError) Error() string {
	if len(e.Emails) == 0 {
		return "duplicate email"
	}
	return fmt.Sprintf("duplicate emails: %s", strings.Join(e.Emails, ", "))
}

// IsDuplicate は err が DuplicateError かどうかを判定します。
func IsDuplicate(err error) (*DuplicateError, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}
