package authuser

import (
	"context"
	"errors"
	"fmt"
)

// FallbackAccount is used for services without a configured default account.
const FallbackAccount = "0"

var ErrNotFound = errors.New("not found")

// A Store resolves the default account configured for a service.
// Get must return an error wrapping ErrNotFound when no account is set, and
// reserve every other error for a lookup that genuinely failed.
type Store interface {
	Get(ctx context.Context, svc Service) (string, error)
}

// An AccountWriter changes the configured default accounts. Navigation
// handling never writes; only the admin surface does.
type AccountWriter interface {
	Set(ctx context.Context, svc Service, account string) error
	Delete(ctx context.Context, svc Service) error
}

// ReadWriteStore is a Store that can also be written to.
type ReadWriteStore interface {
	Store
	AccountWriter
}

// DefaultAccount returns the account configured for svc, or FallbackAccount
// when none is configured. Lookup failures are returned, never defaulted.
func DefaultAccount(ctx context.Context, s Store, svc Service) (string, error) {
	account, err := s.Get(ctx, svc)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return FallbackAccount, nil
		}
		return "", fmt.Errorf("error looking up default account for %s: %w", svc, err)
	}
	return account, nil
}
