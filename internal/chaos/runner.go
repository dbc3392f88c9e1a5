package chaos

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
)

// Options sizes each scenario. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	// Concurrency caps in-flight requests per scenario.
	Concurrency     int
	FloodCount      int
	DuplicateVoters int
	RaceVoters      int
	StressFeatures  int
	StressPages     int
	StressRepeats   int
}

func DefaultOptions() Options {
	return Options{
		Concurrency:     50,
		FloodCount:      200,
		DuplicateVoters: 20,
		RaceVoters:      30,
		StressFeatures:  100,
		StressPages:     19,
		StressRepeats:   5,
	}
}

// Result is the outcome of one scenario.
type Result struct {
	Name     string
	Passed   bool
	Details  string
	Duration time.Duration
	OK       int
	Failed   int
}

type scenario struct {
	name string
	run  func(ctx context.Context, r *Runner) Result
}

type Runner struct {
	client *Client
	opts   Options
	logger *slog.Logger
	// tag makes every email and text unique to this run, so the suite can
	// be pointed at the same server repeatedly.
	tag string
}

func NewRunner(client *Client, opts Options, logger *slog.Logger) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{
		client: client,
		opts:   opts,
		logger: logger,
		tag:    xid.New().String(),
	}
}

// Run executes every scenario in order and returns their results. A
// cancelled context stops before the next scenario starts.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(scenarios))
	for i, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}

		r.logger.Info("running scenario",
			slog.Int("n", i+1),
			slog.Int("of", len(scenarios)),
			slog.String("name", sc.name),
		)

		start := time.Now()
		res := sc.run(ctx, r)
		res.Name = sc.name
		res.Duration = time.Since(start)

		r.logger.Debug("scenario finished",
			slog.String("name", sc.name),
			slog.Bool("passed", res.Passed),
			slog.String("details", res.Details),
		)
		results = append(results, res)
	}
	return results
}

// fanOut calls fn for i in [0, n) with at most Concurrency calls in flight,
// and returns when all of them have.
func (r *Runner) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	sem := make(chan struct{}, r.opts.Concurrency)
	var wg sync.WaitGroup

	for i := range n {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, i)
		}()
	}
	wg.Wait()
}

// AllPassed reports whether every result passed. An empty run did not pass.
func AllPassed(results []Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, res := range results {
		if !res.Passed {
			return false
		}
	}
	return true
}
