package events

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Entry is the flattened, persisted form of an emitted event. Sequence
// numbers start at one and never repeat.
type Entry struct {
	Sequence   uint64            `json:"sequence"`
	EmittedAt  uint64            `json:"emittedAt"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Storage is the narrow persistence surface the journal consumes.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedEntry struct {
	Sequence  uint64
	EmittedAt uint64
	Type      string
	Keys      []string
	Values    []string
}

type subscriber struct {
	ch      chan Entry
	dropped uint64
}

// Journal is the Emitter backing the daemon: every event is assigned a
// sequence number, persisted, and fanned out to live subscribers. Slow
// subscribers lose events rather than blocking the emit path.
type Journal struct {
	mu      sync.Mutex
	state   Storage
	seq     uint64
	seqInit bool
	subs    map[uint64]*subscriber
	nextSub uint64
	onError func(error)
	now     func() time.Time
}

var (
	journalSeqKey    = []byte("events/seq")
	journalEntryBase = "events/journal/"
)

func NewJournal(state Storage) (*Journal, error) {
	if state == nil {
		return nil, fmt.Errorf("events: storage required")
	}
	return &Journal{
		state: state,
		subs:  make(map[uint64]*subscriber),
		now:   time.Now,
	}, nil
}

// SetClock overrides the time source. Passing nil restores the wall clock.
func (j *Journal) SetClock(clock func() time.Time) {
	if j == nil {
		return
	}
	j.mu.Lock()
	if clock == nil {
		j.now = time.Now
	} else {
		j.now = clock
	}
	j.mu.Unlock()
}

// SetErrorHandler installs a hook invoked when persisting an event fails.
// Emit never blocks or returns errors, so the daemon wires its logger here.
func (j *Journal) SetErrorHandler(handler func(error)) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.onError = handler
	j.mu.Unlock()
}

func entryKey(seq uint64) []byte {
	return []byte(journalEntryBase + strconv.FormatUint(seq, 10))
}

func (j *Journal) loadSeqLocked() error {
	if j.seqInit {
		return nil
	}
	var stored uint64
	ok, err := j.state.KVGet(journalSeqKey, &stored)
	if err != nil {
		return err
	}
	if ok {
		j.seq = stored
	}
	j.seqInit = true
	return nil
}

// Emit implements the Emitter interface.
func (j *Journal) Emit(evt Event) {
	if j == nil || evt == nil {
		return
	}
	j.mu.Lock()
	if err := j.loadSeqLocked(); err != nil {
		handler := j.onError
		j.mu.Unlock()
		if handler != nil {
			handler(fmt.Errorf("events: load sequence: %w", err))
		}
		return
	}
	j.seq++
	now := j.now()
	emittedAt := uint64(0)
	if unix := now.Unix(); unix > 0 {
		emittedAt = uint64(unix)
	}
	entry := Entry{
		Sequence:   j.seq,
		EmittedAt:  emittedAt,
		Type:       evt.EventType(),
		Attributes: evt.EventAttributes(),
	}
	stored := flatten(entry)
	var persistErr error
	if err := j.state.KVPut(entryKey(entry.Sequence), stored); err != nil {
		persistErr = err
	} else if err := j.state.KVPut(journalSeqKey, entry.Sequence); err != nil {
		persistErr = err
	}
	handler := j.onError
	for _, sub := range j.subs {
		select {
		case sub.ch <- cloneEntry(entry):
		default:
			sub.dropped++
		}
	}
	j.mu.Unlock()
	if persistErr != nil && handler != nil {
		handler(fmt.Errorf("events: persist %s: %w", entry.Type, persistErr))
	}
}

// Subscribe registers a live feed. The returned cancel function must be
// called to release the subscription; afterwards the channel is closed.
func (j *Journal) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{ch: make(chan Entry, buffer)}
	j.mu.Lock()
	j.nextSub++
	id := j.nextSub
	j.subs[id] = sub
	j.mu.Unlock()
	cancel := func() {
		j.mu.Lock()
		if _, ok := j.subs[id]; ok {
			delete(j.subs, id)
			close(sub.ch)
		}
		j.mu.Unlock()
	}
	return sub.ch, cancel
}

// Seq reports the sequence number of the most recently emitted event.
func (j *Journal) Seq() (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.loadSeqLocked(); err != nil {
		return 0, err
	}
	return j.seq, nil
}

// Recent returns up to limit entries ending at the newest sequence, oldest
// first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	head, err := j.Seq()
	if err != nil {
		return nil, err
	}
	if head == 0 {
		return []Entry{}, nil
	}
	start := uint64(1)
	if head > uint64(limit) {
		start = head - uint64(limit) + 1
	}
	entries := make([]Entry, 0, head-start+1)
	for seq := start; seq <= head; seq++ {
		var stored storedEntry
		ok, err := j.state.KVGet(entryKey(seq), &stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		entries = append(entries, unflatten(stored))
	}
	return entries, nil
}

func flatten(entry Entry) storedEntry {
	keys := make([]string, 0, len(entry.Attributes))
	for key := range entry.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = entry.Attributes[key]
	}
	return storedEntry{
		Sequence:  entry.Sequence,
		EmittedAt: entry.EmittedAt,
		Type:      entry.Type,
		Keys:      keys,
		Values:    values,
	}
}

func unflatten(stored storedEntry) Entry {
	attrs := make(map[string]string, len(stored.Keys))
	for i, key := range stored.Keys {
		if i < len(stored.Values) {
			attrs[key] = stored.Values[i]
		}
	}
	return Entry{
		Sequence:   stored.Sequence,
		EmittedAt:  stored.EmittedAt,
		Type:       stored.Type,
		Attributes: attrs,
	}
}

func cloneEntry(entry Entry) Entry {
	attrs := make(map[string]string, len(entry.Attributes))
	for key, value := range entry.Attributes {
		attrs[key] = value
	}
	entry.Attributes = attrs
	return entry
}
