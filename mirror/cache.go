// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/agentapi"
	"github.com/agentdeck/agentdeck/lib/clock"
)

// refetchTimeout bounds each server fetch triggered by an
// invalidation. Refetches run on context.Background rather than the
// engine's context: a fetch already in flight during shutdown is
// allowed to finish or time out on its own.
const refetchTimeout = 30 * time.Second

// Fetcher loads authoritative state from an agent server. The cache
// calls it asynchronously after an invalidation. agentapi.Dialer
// satisfies it directly; tests substitute fakes.
type Fetcher interface {
	ListSessions(ctx context.Context, endpoint, directory string) ([]agentapi.Session, error)
	GetSession(ctx context.Context, endpoint, directory, sessionID string) (agentapi.Session, error)
	ListMessages(ctx context.Context, endpoint, directory, sessionID string) ([]agentapi.MessageWithParts, error)
	ListTodos(ctx context.Context, endpoint, directory, sessionID string) ([]agentapi.Todo, error)
}

// sessionKey addresses per-session cache entries.
type sessionKey struct {
	key       ChannelKey
	sessionID string
}

// entry is one cached value. gen increases on every write to the
// entry; an async refetch captures the generation at invalidation time
// and stores its result only if the generation is still the same, so a
// fetch that lost a race against newer events is discarded.
type entry[T any] struct {
	gen   uint64
	valid bool
	value T
}

type region uint8

const (
	regionMessages region = iota
	regionSessionList
	regionSession
	regionTodos
)

type watchKey struct {
	region    region
	key       ChannelKey
	sessionID string
}

// Subscription is a registered interest in one cache entry. C receives
// a token after the entry changes; tokens coalesce (capacity one), so
// a slow consumer sees at least one token per burst rather than one
// per change. Close unregisters.
type Subscription struct {
	// C signals that the watched entry changed and should be re-read.
	C <-chan struct{}

	cache *Cache
	key   watchKey
	ch    chan struct{}
}

// Close unregisters the subscription. The channel is not closed;
// consumers select on C alongside their own done channel.
func (s *Subscription) Close() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	set := s.cache.watchers[s.key]
	delete(set, s)
	if len(set) == 0 {
		delete(s.cache.watchers, s.key)
	}
}

// CacheConfig holds configuration for creating a Cache.
type CacheConfig struct {
	// Fetcher loads state after invalidations. If nil, invalidations
	// only drop cached entries and nothing refetches them.
	Fetcher Fetcher
	// Clock timestamps optimistic messages. If nil, the system clock
	// is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Cache is the mirrored server state, keyed by channel. One lock
// guards all regions; the reconciler is the only event-driven writer,
// and reads return copies so callers never share slices with it.
type Cache struct {
	fetcher Fetcher
	clock   clock.Clock
	logger  *slog.Logger

	mu           sync.RWMutex
	gen          uint64
	messages     map[sessionKey]*entry[[]agentapi.MessageWithParts]
	sessionLists map[ChannelKey]*entry[[]agentapi.Session]
	sessions     map[sessionKey]*entry[agentapi.Session]
	todos        map[sessionKey]*entry[[]agentapi.Todo]
	watchers     map[watchKey]map[*Subscription]struct{}
}

// NewCache creates an empty cache.
func NewCache(config CacheConfig) *Cache {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		fetcher:      config.Fetcher,
		clock:        clk,
		logger:       logger,
		messages:     make(map[sessionKey]*entry[[]agentapi.MessageWithParts]),
		sessionLists: make(map[ChannelKey]*entry[[]agentapi.Session]),
		sessions:     make(map[sessionKey]*entry[agentapi.Session]),
		todos:        make(map[sessionKey]*entry[[]agentapi.Todo]),
		watchers:     make(map[watchKey]map[*Subscription]struct{}),
	}
}

// Messages returns a session's messages, sorted by message id
// ascending, or ok=false when the entry is not hydrated. The returned
// slice is a copy owned by the caller.
func (c *Cache) Messages(key ChannelKey, sessionID string) ([]agentapi.MessageWithParts, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.messages[sessionKey{key, sessionID}]
	if !ok || !e.valid {
		return nil, false
	}
	return copyMessages(e.value), true
}

// Sessions returns the session list for a channel, or ok=false when
// not hydrated.
func (c *Cache) Sessions(key ChannelKey) ([]agentapi.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.sessionLists[key]
	if !ok || !e.valid {
		return nil, false
	}
	return append([]agentapi.Session(nil), e.value...), true
}

// Session returns one session's metadata, or ok=false when not hydrated.
func (c *Cache) Session(key ChannelKey, sessionID string) (agentapi.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.sessions[sessionKey{key, sessionID}]
	if !ok || !e.valid {
		return agentapi.Session{}, false
	}
	return e.value, true
}

// Todos returns a session's task list, or ok=false when not hydrated.
func (c *Cache) Todos(key ChannelKey, sessionID string) ([]agentapi.Todo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.todos[sessionKey{key, sessionID}]
	if !ok || !e.valid {
		return nil, false
	}
	return append([]agentapi.Todo(nil), e.value...), true
}

// WatchMessages registers interest in a session's messages.
func (c *Cache) WatchMessages(key ChannelKey, sessionID string) *Subscription {
	return c.watch(watchKey{regionMessages, key, sessionID})
}

// WatchSessions registers interest in a channel's session list.
func (c *Cache) WatchSessions(key ChannelKey) *Subscription {
	return c.watch(watchKey{regionSessionList, key, ""})
}

// WatchTodos registers interest in a session's task list.
func (c *Cache) WatchTodos(key ChannelKey, sessionID string) *Subscription {
	return c.watch(watchKey{regionTodos, key, sessionID})
}

func (c *Cache) watch(k watchKey) *Subscription {
	ch := make(chan struct{}, 1)
	s := &Subscription{C: ch, ch: ch, cache: c, key: k}
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.watchers[k]
	if set == nil {
		set = make(map[*Subscription]struct{})
		c.watchers[k] = set
	}
	set[s] = struct{}{}
	return s
}

// notifyLocked pokes every watcher of an entry. Sends never block:
// a full channel already signals "re-read", and the extra token would
// say nothing more. Callers hold c.mu.
func (c *Cache) notifyLocked(k watchKey) {
	for s := range c.watchers[k] {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

// EnsureMessages returns the cached messages when hydrated; otherwise
// it triggers a refetch and returns ok=false, and a watcher fires once
// the fetch lands. Call once per view, not per render.
func (c *Cache) EnsureMessages(key ChannelKey, sessionID string) ([]agentapi.MessageWithParts, bool) {
	if messages, ok := c.Messages(key, sessionID); ok {
		return messages, true
	}
	c.InvalidateMessages(key, sessionID)
	return nil, false
}

// EnsureSessions is EnsureMessages for the session list.
func (c *Cache) EnsureSessions(key ChannelKey) ([]agentapi.Session, bool) {
	if sessions, ok := c.Sessions(key); ok {
		return sessions, true
	}
	c.InvalidateSessionList(key)
	return nil, false
}

// EnsureTodos is EnsureMessages for the task list.
func (c *Cache) EnsureTodos(key ChannelKey, sessionID string) ([]agentapi.Todo, bool) {
	if todos, ok := c.Todos(key, sessionID); ok {
		return todos, true
	}
	c.InvalidateTodos(key, sessionID)
	return nil, false
}

// InvalidateMessages drops a session's message cache and schedules a
// refetch. Events that write the entry while the fetch is in flight
// win: the stale fetch result is discarded.
func (c *Cache) InvalidateMessages(key ChannelKey, sessionID string) {
	sk := sessionKey{key, sessionID}
	c.mu.Lock()
	e, ok := c.messages[sk]
	if !ok {
		e = &entry[[]agentapi.MessageWithParts]{}
		c.messages[sk] = e
	}
	c.gen++
	e.gen = c.gen
	e.valid = false
	e.value = nil
	gen := e.gen
	c.notifyLocked(watchKey{regionMessages, key, sessionID})
	c.mu.Unlock()

	if c.fetcher == nil {
		return
	}
	go c.refetchMessages(key, sessionID, gen)
}

func (c *Cache) refetchMessages(key ChannelKey, sessionID string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	messages, err := c.fetcher.ListMessages(ctx, key.Endpoint, key.Directory, sessionID)
	if err != nil {
		c.logger.Warn("message refetch failed",
			"endpoint", key.Endpoint,
			"directory", key.Directory,
			"session", sessionID,
			"error", err)
		return
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Info.ID < messages[j].Info.ID
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.messages[sessionKey{key, sessionID}]
	if !ok || e.gen != gen {
		c.logger.Debug("message refetch superseded",
			"session", sessionID)
		return
	}
	e.value = messages
	e.valid = true
	c.notifyLocked(watchKey{regionMessages, key, sessionID})
}

// InvalidateSessionList drops a channel's session list and schedules a
// refetch.
func (c *Cache) InvalidateSessionList(key ChannelKey) {
	c.mu.Lock()
	e, ok := c.sessionLists[key]
	if !ok {
		e = &entry[[]agentapi.Session]{}
		c.sessionLists[key] = e
	}
	c.gen++
	e.gen = c.gen
	e.valid = false
	e.value = nil
	gen := e.gen
	c.notifyLocked(watchKey{regionSessionList, key, ""})
	c.mu.Unlock()

	if c.fetcher == nil {
		return
	}
	go c.refetchSessionList(key, gen)
}

func (c *Cache) refetchSessionList(key ChannelKey, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	sessions, err := c.fetcher.ListSessions(ctx, key.Endpoint, key.Directory)
	if err != nil {
		c.logger.Warn("session list refetch failed",
			"endpoint", key.Endpoint,
			"directory", key.Directory,
			"error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.sessionLists[key]
	if !ok || e.gen != gen {
		return
	}
	e.value = sessions
	e.valid = true
	c.notifyLocked(watchKey{regionSessionList, key, ""})
}

// InvalidateSession drops one session's metadata and schedules a
// refetch. A fetch that reports the session gone removes the entry.
func (c *Cache) InvalidateSession(key ChannelKey, sessionID string) {
	sk := sessionKey{key, sessionID}
	c.mu.Lock()
	e, ok := c.sessions[sk]
	if !ok {
		e = &entry[agentapi.Session]{}
		c.sessions[sk] = e
	}
	c.gen++
	e.gen = c.gen
	e.valid = false
	e.value = agentapi.Session{}
	gen := e.gen
	c.notifyLocked(watchKey{regionSession, key, sessionID})
	c.mu.Unlock()

	if c.fetcher == nil {
		return
	}
	go c.refetchSession(key, sessionID, gen)
}

func (c *Cache) refetchSession(key ChannelKey, sessionID string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	session, err := c.fetcher.GetSession(ctx, key.Endpoint, key.Directory, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	sk := sessionKey{key, sessionID}
	e, ok := c.sessions[sk]
	if !ok || e.gen != gen {
		return
	}
	if err != nil {
		if agentapi.IsServerError(err, agentapi.ErrCodeSessionNotFound) {
			delete(c.sessions, sk)
			return
		}
		c.logger.Warn("session refetch failed",
			"endpoint", key.Endpoint,
			"directory", key.Directory,
			"session", sessionID,
			"error", err)
		return
	}
	e.value = session
	e.valid = true
	c.notifyLocked(watchKey{regionSession, key, sessionID})
}

// InvalidateTodos drops a session's task list and schedules a refetch.
func (c *Cache) InvalidateTodos(key ChannelKey, sessionID string) {
	sk := sessionKey{key, sessionID}
	c.mu.Lock()
	e, ok := c.todos[sk]
	if !ok {
		e = &entry[[]agentapi.Todo]{}
		c.todos[sk] = e
	}
	c.gen++
	e.gen = c.gen
	e.valid = false
	e.value = nil
	gen := e.gen
	c.notifyLocked(watchKey{regionTodos, key, sessionID})
	c.mu.Unlock()

	if c.fetcher == nil {
		return
	}
	go c.refetchTodos(key, sessionID, gen)
}

func (c *Cache) refetchTodos(key ChannelKey, sessionID string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	todos, err := c.fetcher.ListTodos(ctx, key.Endpoint, key.Directory, sessionID)
	if err != nil {
		c.logger.Warn("todo refetch failed",
			"endpoint", key.Endpoint,
			"directory", key.Directory,
			"session", sessionID,
			"error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.todos[sessionKey{key, sessionID}]
	if !ok || e.gen != gen {
		return
	}
	e.value = todos
	e.valid = true
	c.notifyLocked(watchKey{regionTodos, key, sessionID})
}

// AppendOptimistic inserts a locally synthesized user message so the
// conversation shows the prompt immediately, before the server
// confirms it. The placeholder is dropped when the confirmed user
// message arrives on the push channel. Returns the placeholder.
func (c *Cache) AppendOptimistic(key ChannelKey, sessionID, text string) agentapi.MessageWithParts {
	messageID := optimisticPrefix + uuid.NewString()
	message := agentapi.MessageWithParts{
		Info: agentapi.Message{
			ID:        messageID,
			SessionID: sessionID,
			Role:      agentapi.RoleUser,
			Time:      agentapi.MessageTime{Created: c.clock.Now().UnixMilli()},
		},
		Parts: []agentapi.Part{{
			ID:        optimisticPrefix + uuid.NewString(),
			MessageID: messageID,
			SessionID: sessionID,
			Type:      agentapi.PartText,
			Text:      text,
		}},
	}

	sk := sessionKey{key, sessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.messages[sk]
	if !ok {
		e = &entry[[]agentapi.MessageWithParts]{}
		c.messages[sk] = e
	}
	c.gen++
	e.gen = c.gen
	e.valid = true
	i, _ := findMessage(e.value, messageID)
	e.value = append(e.value, agentapi.MessageWithParts{})
	copy(e.value[i+1:], e.value[i:])
	e.value[i] = message
	c.notifyLocked(watchKey{regionMessages, key, sessionID})
	return message
}

// applyMessage merges one message snapshot, creating the session's
// entry if needed.
func (c *Cache) applyMessage(key ChannelKey, info agentapi.Message) {
	sk := sessionKey{key, info.SessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.messages[sk]
	if !ok {
		e = &entry[[]agentapi.MessageWithParts]{}
		c.messages[sk] = e
	}
	c.gen++
	e.gen = c.gen
	e.valid = true
	e.value = mergeMessage(e.value, info)
	c.notifyLocked(watchKey{regionMessages, key, info.SessionID})
}

// applyPart merges one part snapshot. It returns the owning session id
// and whether a cached message accepted the part; unowned parts are
// not stored. When the part does not name its session, every hydrated
// session on the channel is searched.
func (c *Cache) applyPart(key ChannelKey, part agentapi.Part) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if part.SessionID != "" {
		e, ok := c.messages[sessionKey{key, part.SessionID}]
		if !ok || !mergePart(e.value, part) {
			return part.SessionID, false
		}
		c.gen++
		e.gen = c.gen
		c.notifyLocked(watchKey{regionMessages, key, part.SessionID})
		return part.SessionID, true
	}

	for sk, e := range c.messages {
		if sk.key != key {
			continue
		}
		if mergePart(e.value, part) {
			c.gen++
			e.gen = c.gen
			c.notifyLocked(watchKey{regionMessages, key, sk.sessionID})
			return sk.sessionID, true
		}
	}
	return "", false
}

// applyMessageRemoved deletes a message from its session.
func (c *Cache) applyMessageRemoved(key ChannelKey, sessionID, messageID string) {
	sk := sessionKey{key, sessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.messages[sk]
	if !ok {
		return
	}
	value, removed := removeMessage(e.value, messageID)
	if !removed {
		return
	}
	c.gen++
	e.gen = c.gen
	e.value = value
	c.notifyLocked(watchKey{regionMessages, key, sessionID})
}

// applyPartRemoved deletes a part from its message.
func (c *Cache) applyPartRemoved(key ChannelKey, sessionID, messageID, partID string) {
	sk := sessionKey{key, sessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.messages[sk]
	if !ok {
		return
	}
	if !removePart(e.value, messageID, partID) {
		return
	}
	c.gen++
	e.gen = c.gen
	c.notifyLocked(watchKey{regionMessages, key, sessionID})
}

// applyIdleStamp marks unfinished assistant messages in a session as
// completed at now. Returns how many were stamped.
func (c *Cache) applyIdleStamp(key ChannelKey, sessionID string, now int64) int {
	sk := sessionKey{key, sessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.messages[sk]
	if !ok || !e.valid {
		return 0
	}
	stamped := stampCompleted(e.value, now)
	if stamped == 0 {
		return 0
	}
	c.gen++
	e.gen = c.gen
	c.notifyLocked(watchKey{regionMessages, key, sessionID})
	return stamped
}

// removeSession purges every entry for a deleted session. Nothing is
// refetched: the session is gone.
func (c *Cache) removeSession(key ChannelKey, sessionID string) {
	sk := sessionKey{key, sessionID}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, sk)
	delete(c.sessions, sk)
	delete(c.todos, sk)
	c.notifyLocked(watchKey{regionMessages, key, sessionID})
	c.notifyLocked(watchKey{regionSession, key, sessionID})
	c.notifyLocked(watchKey{regionTodos, key, sessionID})
}

// copyMessages deep-copies the parts slices so readers never share
// backing arrays with the reconciler's in-place merges.
func copyMessages(list []agentapi.MessageWithParts) []agentapi.MessageWithParts {
	out := make([]agentapi.MessageWithParts, len(list))
	copy(out, list)
	for i := range out {
		out[i].Parts = append([]agentapi.Part(nil), out[i].Parts...)
	}
	return out
}
