package port

import (
	"context"
	"sync"
)

// TxManager runs fn inside a database transaction carried on ctx.
// Implementations run the callbacks registered with AfterCommit once the
// transaction commits and drop them on rollback.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type commitHooksKey struct{}

// CommitHooks collects callbacks that must wait for the surrounding transaction.
type CommitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// WithCommitHooks returns ctx carrying a fresh hook list. A ctx that already
// carries one is returned unchanged so nested transactions share the outer list.
func WithCommitHooks(ctx context.Context) (context.Context, *CommitHooks) {
	if h, ok := ctx.Value(commitHooksKey{}).(*CommitHooks); ok {
		return ctx, h
	}
	h := &CommitHooks{}
	return context.WithValue(ctx, commitHooksKey{}, h), h
}

// AfterCommit runs fn once the transaction on ctx commits, or right away when
// ctx carries no transaction.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	h, ok := ctx.Value(commitHooksKey{}).(*CommitHooks)
	if !ok {
		fn(ctx)
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

// Run calls the registered callbacks in order and clears the list.
func (h *CommitHooks) Run(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}
