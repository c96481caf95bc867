package collector

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rocasol/solarmon/internal/fetcher"
	"github.com/rocasol/solarmon/internal/store"
)

// Collector sequences the per-vendor, per-granularity collection runs for a
// target date. It is the only component aware of cross-run ordering.
type Collector struct {
	Huawei *fetcher.HuaweiClient
	Solis  *fetcher.SolisClient
	DB     *store.DB

	// Pause is the delay between sequential Solis per-inverter requests.
	Pause time.Duration
	// Backoff is the delay before retrying a rate-limited page.
	Backoff time.Duration
	// RateLimitRetries bounds retries per rate-limited page.
	RateLimitRetries int

	// Sleep is replaceable in tests. Defaults to time.Sleep.
	Sleep func(time.Duration)
}

// RunName identifies one collection sub-run.
type RunName string

const (
	RunSolisSystem    RunName = "solis-system"
	RunSolisInverter  RunName = "solis-inverter"
	RunHuaweiSystem   RunName = "huawei-system"
	RunHuaweiInverter RunName = "huawei-inverter"
	RunHuaweiGranular RunName = "huawei-granular"
)

// RunOrder is the fixed sequence CollectAll executes.
var RunOrder = []RunName{
	RunSolisSystem,
	RunSolisInverter,
	RunHuaweiSystem,
	RunHuaweiInverter,
	RunHuaweiGranular,
}

// RunResult records the outcome of one sub-run.
type RunResult struct {
	Name  RunName
	Stats store.Stats
	Err   error
}

// Summary aggregates the outcomes of a full collection sequence.
type Summary struct {
	Date    time.Time
	Results []RunResult
}

// Succeeded returns the number of sub-runs that completed without a fatal
// error.
func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of sub-runs that ended with a fatal error.
func (s Summary) Failed() int {
	return len(s.Results) - s.Succeeded()
}

// Run executes a single named sub-run for the target date.
func (c *Collector) Run(ctx context.Context, name RunName, date time.Time) (store.Stats, error) {
	switch name {
	case RunSolisSystem:
		return c.CollectSolisSystem(ctx, date)
	case RunSolisInverter:
		return c.CollectSolisInverters(ctx, date)
	case RunHuaweiSystem:
		return c.CollectHuaweiSystem(ctx, date)
	case RunHuaweiInverter:
		return c.CollectHuaweiInverters(ctx, date)
	case RunHuaweiGranular:
		return c.CollectHuaweiGranular(ctx, date)
	default:
		return store.Stats{}, fmt.Errorf("unknown run %q", name)
	}
}

// CollectAll runs the full sequence for the target date. With skipErrors a
// failed sub-run is recorded and the sequence continues; without it the
// first failure stops the remainder.
func (c *Collector) CollectAll(ctx context.Context, date time.Time, skipErrors bool) Summary {
	summary := Summary{Date: date}
	logger := log.WithFields(log.Fields{"component": "collector", "date": date.Format("2006-01-02")})

	for _, name := range RunOrder {
		runLog := logger.WithField("run", string(name))
		runLog.Info("starting sub-run")

		stats, err := c.Run(ctx, name, date)
		summary.Results = append(summary.Results, RunResult{Name: name, Stats: stats, Err: err})

		if err != nil {
			runLog.WithError(err).Error("sub-run failed")
			if !skipErrors {
				runLog.Warn("halting remaining sub-runs")
				break
			}
			continue
		}
		runLog.Info("sub-run finished: " + stats.String())
	}
	return summary
}

func (c *Collector) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (c *Collector) pager(logger *log.Entry, relogin func(context.Context) error) pagerConfig {
	return pagerConfig{
		backoff:          c.Backoff,
		rateLimitRetries: c.RateLimitRetries,
		sleep:            c.sleep,
		log:              logger,
		relogin:          relogin,
	}
}

// pagerConfig carries the shared per-run driver policy.
type pagerConfig struct {
	backoff          time.Duration
	rateLimitRetries int
	sleep            func(time.Duration)
	log              *log.Entry
	relogin          func(context.Context) error
}

func runPager[T any](ctx context.Context, cfg pagerConfig, pageSize int, fetch func(context.Context, int) ([]T, error)) ([]T, error) {
	p := &fetcher.Pager[T]{
		PageSize:         pageSize,
		Fetch:            fetch,
		Relogin:          cfg.relogin,
		Backoff:          cfg.backoff,
		RateLimitRetries: cfg.rateLimitRetries,
		Sleep:            cfg.sleep,
		Log:              cfg.log,
	}
	return p.Run(ctx)
}
