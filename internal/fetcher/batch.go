package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// PageSizeDefault is the page size for system and inverter endpoints.
// PageSizeHistory is the smaller page size for the counter-sample endpoint.
const (
	PageSizeDefault = 100
	PageSizeHistory = 10
)

// Pager drives a page-fetch function across increasing page indexes until a
// short page or an empty batch signals the end of the listing. Pages are
// fetched sequentially; the flattened result preserves page order.
type Pager[T any] struct {
	// PageSize is the vendor's fixed page size. A page with fewer items
	// terminates the loop.
	PageSize int

	// Fetch retrieves one page (1-based index).
	Fetch func(ctx context.Context, page int) ([]T, error)

	// Relogin refreshes the vendor session after an in-band expiry signal.
	// Nil for sessionless vendors: any expiry signal is then fatal.
	Relogin func(ctx context.Context) error

	// Backoff is the delay applied before retrying a rate-limited page.
	Backoff time.Duration

	// RateLimitRetries bounds retries of a rate-limited page. Rate limits are
	// vendor-load-dependent, so this is a policy knob rather than a hard one.
	RateLimitRetries int

	// Sleep is replaceable in tests. Defaults to time.Sleep.
	Sleep func(time.Duration)

	// Log scopes driver messages to the surrounding run. Optional.
	Log *log.Entry
}

// Run fetches all pages and returns the concatenated records.
func (p *Pager[T]) Run(ctx context.Context) ([]T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := p.Log
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	var all []T
	for page := 1; ; page++ {
		items, err := p.fetchPage(ctx, page, sleep, logger)
		if errors.Is(err, ErrEmptyBatch) {
			logger.WithField("batch", page).Debug("empty batch, listing exhausted")
			return all, nil
		}
		if err != nil {
			return nil, fmt.Errorf("fetching batch %d: %w", page, err)
		}

		all = append(all, items...)
		logger.WithFields(log.Fields{"batch": page, "records": len(items)}).Info("batch fetched")

		if len(items) < p.PageSize {
			return all, nil
		}
	}
}

// fetchPage fetches a single page, recovering from one session expiry and a
// bounded number of rate-limit hits. A second expiry on the same page is
// fatal: silently continuing would skip that page's records.
func (p *Pager[T]) fetchPage(ctx context.Context, page int, sleep func(time.Duration), logger *log.Entry) ([]T, error) {
	reauthed := false
	rateLimitHits := 0

	for {
		items, err := p.Fetch(ctx, page)
		if err == nil {
			return items, nil
		}

		switch {
		case IsSessionExpired(err):
			if reauthed || p.Relogin == nil {
				return nil, fmt.Errorf("session expired again after re-login: %w", err)
			}
			logger.WithField("batch", page).Warn("session expired, re-authenticating and retrying batch")
			if lerr := p.Relogin(ctx); lerr != nil {
				return nil, fmt.Errorf("re-login after session expiry: %w", lerr)
			}
			reauthed = true

		case IsRateLimited(err):
			if rateLimitHits >= p.RateLimitRetries {
				return nil, fmt.Errorf("rate limited %d times: %w", rateLimitHits, err)
			}
			rateLimitHits++
			logger.WithFields(log.Fields{"batch": page, "attempt": rateLimitHits}).
				Warn("rate limited, backing off before retrying batch")
			sleep(p.Backoff)

		default:
			return nil, err
		}
	}
}
