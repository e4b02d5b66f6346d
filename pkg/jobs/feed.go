package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/metrics"
	"github.com/bitechdev/JobFeed/pkg/realtime"
)

// Topic carries job create and update events.
const Topic = "/topic/jobs"

// DefaultNewFor is how long a received job keeps its "new" mark.
const DefaultNewFor = 10 * time.Second

// Subscriber is the part of realtime.Client the feed needs.
type Subscriber interface {
	Subscribe(topic string, h realtime.Handler) realtime.Unsubscribe
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithNewFor overrides how long jobs stay marked as new.
func WithNewFor(d time.Duration) FeedOption {
	return func(f *Feed) { f.newFor = d }
}

// WithOnJob registers a hook called after each stored job.
// created is true when the job was not known before.
func WithOnJob(fn func(job Job, created bool)) FeedOption {
	return func(f *Feed) { f.onJob = fn }
}

// WithFeedMetrics sets the metrics provider.
func WithFeedMetrics(p metrics.Provider) FeedOption {
	return func(f *Feed) { f.metrics = p }
}

// Feed stores jobs pushed on Topic and tracks which ones arrived recently.
type Feed struct {
	sub     Subscriber
	store   *Store
	newFor  time.Duration
	onJob   func(Job, bool)
	metrics metrics.Provider

	mu     sync.Mutex
	fresh  map[string]*time.Timer
	cancel realtime.Unsubscribe
}

// NewFeed creates a feed. Call Start to begin receiving.
func NewFeed(sub Subscriber, store *Store, opts ...FeedOption) *Feed {
	f := &Feed{
		sub:     sub,
		store:   store,
		newFor:  DefaultNewFor,
		metrics: metrics.GetProvider(),
		fresh:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start subscribes to Topic. Calling it twice is a no-op.
func (f *Feed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}
	f.cancel = f.sub.Subscribe(Topic, f.handle)
}

// Stop unsubscribes and clears all new marks.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	for id, t := range f.fresh {
		t.Stop()
		delete(f.fresh, id)
	}
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// IsNew reports whether id was received within the new window.
func (f *Feed) IsNew(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.fresh[id]
	return ok
}

// NewCount returns how many jobs are currently marked as new.
func (f *Feed) NewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fresh)
}

func (f *Feed) handle(msg realtime.Message) {
	var job Job
	if err := msg.Decode(&job); err != nil {
		logger.Warn("[Jobs] Ignoring undecodable message on %s: %v", msg.Topic, err)
		return
	}
	if job.ID == "" {
		logger.Warn("[Jobs] Ignoring job without id on %s", msg.Topic)
		return
	}

	created, err := f.store.Upsert(context.Background(), &job)
	if err != nil {
		logger.Error("[Jobs] Failed to store job %s: %v", job.ID, err)
		return
	}

	f.markNew(job.ID)
	f.metrics.RecordJob(created)
	if created {
		logger.Info("[Jobs] New job %s: %s at %s", job.ID, job.Title, job.Company)
	} else {
		logger.Debug("[Jobs] Updated job %s", job.ID)
	}

	if f.onJob != nil {
		f.onJob(job, created)
	}
}

func (f *Feed) markNew(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.fresh[id]; ok && t.Reset(f.newFor) {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(f.newFor, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fresh[id] == t {
			delete(f.fresh, id)
		}
	})
	f.fresh[id] = t
}
