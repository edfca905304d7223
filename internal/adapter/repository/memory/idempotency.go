package memory

import (
	"context"
	"sync"
	"time"

	"github.com/strogmv/renodesk/internal/port"
)

type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{keys: make(map[string]time.Time), now: time.Now}
}

func (s *IdempotencyStore) Check(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.keys[key]
	if !ok {
		return false, nil
	}
	if !exp.IsZero() && s.now().After(exp) {
		delete(s.keys, key)
		return false, nil
	}
	return true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.keys[key] = exp
	return nil
}

// TxManager runs fn without a transaction. Commit hooks still wait for fn to succeed.
type TxManager struct{}

func (TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, hooks := port.WithCommitHooks(ctx)
	if err := fn(txCtx); err != nil {
		return err
	}
	if txCtx != ctx {
		hooks.Run(ctx)
	}
	return nil
}

var (
	_ port.IdempotencyStore = (*IdempotencyStore)(nil)
	_ port.TxManager        = TxManager{}
)
