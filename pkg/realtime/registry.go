package realtime

import (
	"sync"

	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/metrics"
)

type registration struct {
	key     string // topic + id
	topic   string
	handler Handler
	live    bool
}

type topicEntry struct {
	topic   string
	regs    []*registration // registration order
	sub     TopicSubscription
	claimed bool // a transport Subscribe for this entry is in progress
}

// registry maps topics to ordered registrations. Mutations happen with the
// client mutex held; mu only protects against concurrent dispatch.
// Transport I/O never happens under either lock: a topic is claimed, the
// Subscribe runs unlocked, and the result is bound if the session is unchanged.
type registry struct {
	mu     sync.RWMutex
	topics map[string]*topicEntry
	byKey  map[string]*registration
	order  []string // topics in first-registration order
	gen    uint64   // bumped whenever live subscriptions are attached or dropped
	m      metrics.Provider
}

func newRegistry(m metrics.Provider) *registry {
	return &registry{
		topics: make(map[string]*topicEntry),
		byKey:  make(map[string]*registration),
		m:      m,
	}
}

// add records a registration. An existing id on the same topic is returned unchanged.
func (r *registry) add(id, topic string, h Handler) (*registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := topic + "\x00" + id
	if reg, ok := r.byKey[key]; ok {
		return reg, false
	}

	reg := &registration{key: key, topic: topic, handler: h}
	entry, ok := r.topics[topic]
	if !ok {
		entry = &topicEntry{topic: topic}
		r.topics[topic] = entry
		r.order = append(r.order, topic)
	}
	entry.regs = append(entry.regs, reg)
	r.byKey[key] = reg
	return reg, true
}

// remove deletes reg. When it was the last registration of its topic the
// topic's transport subscription is returned so the caller can close it.
func (r *registry) remove(reg *registration) (TopicSubscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byKey[reg.key] != reg {
		return nil, false
	}
	delete(r.byKey, reg.key)
	reg.live = false

	entry := r.topics[reg.topic]
	for i, candidate := range entry.regs {
		if candidate == reg {
			entry.regs = append(entry.regs[:i:i], entry.regs[i+1:]...)
			break
		}
	}
	if len(entry.regs) > 0 {
		return nil, true
	}

	delete(r.topics, reg.topic)
	for i, t := range r.order {
		if t == reg.topic {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return entry.sub, true
}

// claimPending claims every topic that is neither bound nor being subscribed.
func (r *registry) claimPending() []*topicEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []*topicEntry
	for _, t := range r.order {
		entry := r.topics[t]
		if entry.sub == nil && !entry.claimed {
			entry.claimed = true
			entries = append(entries, entry)
		}
	}
	return entries
}

// claim claims topic for a transport Subscribe. It returns nil when the topic
// is already bound or another caller holds the claim.
func (r *registry) claim(topic string) *topicEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.topics[topic]
	if !ok || entry.sub != nil || entry.claimed {
		return nil
	}
	entry.claimed = true
	return entry
}

// release gives up a claim after a failed Subscribe.
func (r *registry) release(entry *topicEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.claimed = false
}

// bind attaches sub to a claimed entry and marks its registrations live.
// It reports false when the entry was removed in the meantime.
func (r *registry) bind(entry *topicEntry, sub TopicSubscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.claimed = false
	if r.topics[entry.topic] != entry {
		return false
	}
	entry.sub = sub
	for _, reg := range entry.regs {
		reg.live = true
	}
	return true
}

// markLive marks reg live when its topic is already bound.
func (r *registry) markLive(reg *registration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.topics[reg.topic]
	if !ok || entry.sub == nil {
		return false
	}
	reg.live = true
	return true
}

// nextGen starts a new generation; frames tagged with older generations are ignored.
func (r *registry) nextGen() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	return r.gen
}

// drop forgets every transport subscription without closing it. Used when the session is gone.
func (r *registry) drop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	for _, entry := range r.topics {
		entry.sub = nil
		entry.claimed = false
		for _, reg := range entry.regs {
			reg.live = false
		}
	}
}

// reset removes every registration and returns the transport subscriptions that were live.
func (r *registry) reset() []TopicSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var subs []TopicSubscription
	for _, t := range r.order {
		entry := r.topics[t]
		if entry.sub != nil {
			subs = append(subs, entry.sub)
		}
		for _, reg := range entry.regs {
			reg.live = false
		}
	}
	r.gen++
	r.topics = make(map[string]*topicEntry)
	r.byKey = make(map[string]*registration)
	r.order = nil
	return subs
}

func (r *registry) counts() (topics, registrations, live int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.topics {
		registrations += len(entry.regs)
		for _, reg := range entry.regs {
			if reg.live {
				live++
			}
		}
	}
	return len(r.topics), registrations, live
}

func (r *registry) publishCounts() {
	_, regs, live := r.counts()
	r.m.SetRegistrations(regs, live)
}

// dispatch delivers f to every live registration of its topic, in registration order.
func (r *registry) dispatch(gen uint64, topic string, f Frame) {
	r.mu.RLock()
	if gen != r.gen {
		r.mu.RUnlock()
		return
	}
	var handlers []Handler
	if entry, ok := r.topics[topic]; ok {
		for _, reg := range entry.regs {
			if reg.live {
				handlers = append(handlers, reg.handler)
			}
		}
	}
	r.mu.RUnlock()

	if f.Topic == "" {
		f.Topic = topic
	}
	msg := newMessage(f)
	if msg.Raw {
		logger.Debug("[Realtime] Delivering non-JSON payload on %s as text", topic)
		r.m.RecordDecodeFallback(topic)
	}
	r.m.RecordFrame(topic, len(handlers))

	for _, h := range handlers {
		deliver(topic, h, msg)
	}
}

func deliver(topic string, h Handler, msg Message) {
	defer logger.CatchPanic("[Realtime] handler for " + topic)
	h(msg)
}
