package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/upb/identity-core/repositories"
)

var errTxDone = errors.New("transaction already committed or rolled back")

type txContextKey struct{}

// TransactionManager implements repositories.TransactionManager with an undo
// journal: writes made through a transaction context are reverted on Rollback.
// Isolation from concurrent writers is not provided.
type TransactionManager struct {
	store *Store
}

// Begin starts a new transaction
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx := &Transaction{store: tm.store}
	tx.ctx = context.WithValue(ctx, txContextKey{}, tx)
	return tx, nil
}

// InTransaction executes fn within a transaction
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Transaction records undo steps for writes made under its context
type Transaction struct {
	store *Store
	ctx   context.Context

	mu   sync.Mutex
	undo []func()
	done bool
}

// Commit discards the undo journal
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errTxDone
	}
	t.done = true
	t.undo = nil
	return nil
}

// Rollback reverts journaled writes in reverse order
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	undo := t.undo
	t.undo = nil
	t.mu.Unlock()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return nil
}

// Context returns a context bound to this transaction
func (t *Transaction) Context() context.Context {
	return t.ctx
}

// journal records an undo step when ctx carries an open transaction.
// Callers hold s.mu.
func (s *Store) journal(ctx context.Context, undo func()) {
	tx, ok := ctx.Value(txContextKey{}).(*Transaction)
	if !ok || tx.store != s {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.done {
		tx.undo = append(tx.undo, undo)
	}
}
