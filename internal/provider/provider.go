package provider

import (
	"context"
	"fmt"

	"quotecache/internal/quote"
)

// Provider is a single external market-data source. Implementations map the
// vendor response into the canonical Quote shape and report failures as
// *Error. They must not touch shared state; the caller owns rate-limit and
// health bookkeeping.
type Provider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (quote.Quote, error)
}

// BatchProvider is implemented by providers whose upstream accepts
// multi-symbol requests. Callers fall back to single fetches when a provider
// does not support it. The returned map may be missing symbols the vendor had
// no usable price for; that is not an error as long as something came back.
type BatchProvider interface {
	Provider
	FetchQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, error)
}

// Error is a failed upstream call: bad status, malformed payload, missing or
// non-positive price, timeout. It is recovered by trying the next provider
// and never propagated past the resolver.
type Error struct {
	Provider string
	Cause    string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Cause, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Cause)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted cause.
func Errorf(provider, format string, args ...any) *Error {
	return &Error{Provider: provider, Cause: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an underlying error.
func Wrap(provider, cause string, err error) *Error {
	return &Error{Provider: provider, Cause: cause, Err: err}
}
