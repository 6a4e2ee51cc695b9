package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourusername/account-api/internal/account"
)

type memoryStore struct {
	records map[string]*Record
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]*Record{}}
}

func (s *memoryStore) Get(_ context.Context, token string) (*Record, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.records[token], nil
}

func (s *memoryStore) Set(_ context.Context, record *Record) error {
	copied := *record
	s.records[record.Token] = &copied
	return nil
}

func (s *memoryStore) Delete(_ context.Context, token string) error {
	delete(s.records, token)
	return nil
}

type memoryAccounts struct {
	emails map[string]bool
	err    error
}

func (a *memoryAccounts) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	if a.err != nil {
		return nil, a.err
	}
	if !a.emails[email] {
		return nil, nil
	}
	return &account.Account{Email: email}, nil
}

func newTestManager() (*Manager, *memoryStore, *memoryAccounts) {
	store := newMemoryStore()
	accounts := &memoryAccounts{emails: map[string]bool{"user@example.com": true}}
	return NewManager(store, accounts, time.Hour), store, accounts
}

func TestCreateAndResolve(t *testing.T) {
	manager, store, _ := newTestManager()
	ctx := context.Background()

	token, err := manager.Create(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if token == "" {
		t.Fatal("Create returned empty token")
	}
	if store.records[token] == nil {
		t.Fatal("session record not persisted")
	}

	principal, err := manager.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if principal.Email != "user@example.com" {
		t.Fatalf("principal = %q, want user@example.com", principal.Email)
	}
}

func TestCreateIssuesUniqueTokens(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	first, err := manager.Create(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	second, err := manager.Create(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if first == second {
		t.Fatal("two sessions must have distinct tokens")
	}
}

func TestResolveUnknownToken(t *testing.T) {
	manager, _, _ := newTestManager()

	principal, err := manager.Resolve(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !principal.IsAnonymous() {
		t.Fatalf("unknown token resolved to %q, want anonymous", principal.Email)
	}
}

func TestResolveEmptyToken(t *testing.T) {
	manager, _, _ := newTestManager()

	principal, err := manager.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !principal.IsAnonymous() {
		t.Fatal("empty token must resolve to anonymous")
	}
}

func TestResolveDeletedAccount(t *testing.T) {
	manager, store, accounts := newTestManager()
	ctx := context.Background()

	token, err := manager.Create(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// セッション発行後にアカウントが削除されたケース
	accounts.emails["user@example.com"] = false

	principal, err := manager.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !principal.IsAnonymous() {
		t.Fatal("session for a deleted account must resolve to anonymous")
	}
	if store.records[token] != nil {
		t.Fatal("orphaned session record must be removed")
	}
}

func TestResolveExpiredSession(t *testing.T) {
	store := newMemoryStore()
	accounts := &memoryAccounts{emails: map[string]bool{"user@example.com": true}}
	manager := NewManager(store, accounts, time.Hour)

	now := time.Now().UTC()
	store.records["stale"] = &Record{
		Token:     "stale",
		Email:     "user@example.com",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}

	principal, err := manager.Resolve(context.Background(), "stale")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !principal.IsAnonymous() {
		t.Fatal("expired session must resolve to anonymous")
	}
	if store.records["stale"] != nil {
		t.Fatal("expired session record must be removed")
	}
}

func TestResolveStoreFailure(t *testing.T) {
	manager, store, _ := newTestManager()
	store.getErr = errors.New("redis down")

	if _, err := manager.Resolve(context.Background(), "any-token"); err == nil {
		t.Fatal("expected error when the session store fails")
	}
}

func TestDestroyIdempotent(t *testing.T) {
	manager, store, _ := newTestManager()
	ctx := context.Background()

	token, err := manager.Create(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := manager.Destroy(ctx, token); err != nil {
		t.Fatalf("Destroy returned error: %v", err)
	}
	if store.records[token] != nil {
		t.Fatal("session record must be removed")
	}

	// 既に破棄済みのトークンでもエラーにならないこと
	if err := manager.Destroy(ctx, token); err != nil {
		t.Fatalf("second Destroy returned error: %v", err)
	}
	if err := manager.Destroy(ctx, ""); err != nil {
		t.Fatalf("Destroy with empty token returned error: %v", err)
	}
}
