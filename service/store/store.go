package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes the intermediate processed records from final results.
type Kind string

const (
	KindProcessed Kind = "processed"
	KindResults   Kind = "results"
	// KindStaging holds the records of a paged scan that has not finished yet.
	KindStaging Kind = "staging"
)

// Scope separates wallets analyzed on their own from wallets analyzed as part of
// a top-performers run.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeMulti  Scope = "multi"
)

// DateLayout is the layout of Key.Date.
const DateLayout = "2006-01-02"

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeSingle, ScopeMulti:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("invalid scope %q (want %q or %q)", s, ScopeSingle, ScopeMulti)
	}
}

// Key addresses one stored artifact. Artifacts are partitioned by day so a wallet
// is recomputed at most once per day.
type Key struct {
	Kind   Kind
	Scope  Scope
	Date   string
	Wallet string
}

// NewKey builds a key for the calendar day of t.
func NewKey(kind Kind, scope Scope, wallet string, t time.Time) Key {
	return Key{Kind: kind, Scope: scope, Date: t.Format(DateLayout), Wallet: wallet}
}

func (k Key) validate() error {
	var errs []error
	switch k.Kind {
	case KindProcessed, KindResults, KindStaging:
	default:
		errs = append(errs, fmt.Errorf("invalid kind %q", k.Kind))
	}
	if _, err := ParseScope(string(k.Scope)); err != nil {
		errs = append(errs, err)
	}
	if _, err := time.Parse(DateLayout, k.Date); err != nil {
		errs = append(errs, fmt.Errorf("invalid date %q", k.Date))
	}
	if k.Wallet == "" {
		errs = append(errs, errors.New("wallet is required"))
	}
	return errors.Join(errs...)
}

// day returns Date as midnight UTC. Only valid after validate.
func (k Key) day() time.Time {
	t, _ := time.Parse(DateLayout, k.Date)
	return t
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Scope, k.Date, k.Kind, k.Wallet)
}

// Store persists JSON-serializable artifacts.
type Store interface {
	// Load decodes the artifact at key into v. It reports false when nothing is stored.
	Load(ctx context.Context, key Key, v any) (bool, error)
	// Save stores v at key, replacing any previous artifact.
	Save(ctx context.Context, key Key, v any) error
}
