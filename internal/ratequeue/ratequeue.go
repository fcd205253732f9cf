package ratequeue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 5 * time.Second
	maxJitter         = time.Second
)

// RateLimitError signals that the upstream provider throttled a request.
// RetryAfter carries the provider's Retry-After hint when one was given.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// IsRateLimit reports whether err should be retried as a throttling
// error. Providers are inconsistent, so besides the typed error we also
// recognize the usual message spellings.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// Operation is one outbound provider call.
type Operation func(ctx context.Context) (interface{}, error)

type outcome struct {
	value interface{}
	err   error
}

type item struct {
	ctx     context.Context
	op      Operation
	retries int
	result  chan outcome
}

// Queue serializes outbound provider calls to at most one every
// minInterval and retries throttled operations with exponential backoff
// plus jitter. All provider calls in the process route through one
// shared instance, so pacing holds regardless of caller concurrency.
type Queue struct {
	minInterval time.Duration
	maxRetries  int
	baseDelay   time.Duration
	logger      *logrus.Logger

	mu          sync.Mutex
	pending     []*item
	closed      bool
	lastRequest time.Time

	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	jitter func() time.Duration
}

// New creates a queue pacing at requestsPerSecond with default retry
// behavior. Call Start before use.
func New(requestsPerSecond float64, logger *logrus.Logger) *Queue {
	return NewWithRetry(requestsPerSecond, defaultMaxRetries, defaultBaseDelay, logger)
}

// NewWithRetry creates a queue with explicit retry settings so tests
// can run with short delays.
func NewWithRetry(requestsPerSecond float64, maxRetries int, baseDelay time.Duration, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Queue{
		minInterval: time.Duration(float64(time.Second) / requestsPerSecond),
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		logger:      logger,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
}

// Start launches the worker goroutine that drains the queue.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Close stops the worker. Pending operations are rejected with
// ErrQueueClosed; in-flight work finishes first.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()

	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, it := range pending {
		it.result <- outcome{err: ErrQueueClosed}
	}
}

// Len returns the number of operations waiting to execute.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Do enqueues op and blocks until it completes, is rejected, or ctx is
// canceled. Operations execute strictly in enqueue order.
func (q *Queue) Do(ctx context.Context, op Operation) (interface{}, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	it := &item{ctx: ctx, op: op, result: make(chan outcome, 1)}
	q.pending = append(q.pending, it)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case out := <-it.result:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			it := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()

			if !q.process(it) {
				return
			}
		}
	}
}

// process executes one item, honoring the pacing interval. It returns
// false when the queue shut down mid-wait.
func (q *Queue) process(it *item) bool {
	q.mu.Lock()
	wait := q.minInterval - time.Since(q.lastRequest)
	q.mu.Unlock()
	if wait > 0 && !q.sleep(wait) {
		it.result <- outcome{err: ErrQueueClosed}
		return false
	}

	q.mu.Lock()
	q.lastRequest = time.Now()
	q.mu.Unlock()

	value, err := it.op(it.ctx)
	if err == nil {
		it.result <- outcome{value: value}
		return true
	}

	if !IsRateLimit(err) || it.retries >= q.maxRetries {
		it.result <- outcome{err: err}
		return true
	}

	delay := q.retryDelay(err, it.retries)
	it.retries++
	q.logger.WithFields(logrus.Fields{
		"retry":    it.retries,
		"max":      q.maxRetries,
		"delay_ms": delay.Milliseconds(),
	}).Warn("Rate limited, requeueing operation")

	// Retried operations go back to the head so global ordering holds;
	// the whole queue waits out the backoff.
	q.mu.Lock()
	q.pending = append([]*item{it}, q.pending...)
	q.mu.Unlock()
	if !q.sleep(delay) {
		return false
	}
	return true
}

// retryDelay computes exponential backoff with jitter, seeded from the
// provider's Retry-After hint when present.
func (q *Queue) retryDelay(err error, retries int) time.Duration {
	base := q.baseDelay
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		base = rle.RetryAfter
	}
	return base*(1<<uint(retries)) + q.jitter()
}

func (q *Queue) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.done:
		return false
	}
}
