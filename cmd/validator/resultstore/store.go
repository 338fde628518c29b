// store.go
package resultstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Origin tags where a report identifier points: the in-memory store
// or the persistence layer.
type Origin int

const (
	OriginEphemeral Origin = iota
	OriginDatabase
)

func (o Origin) String() string {
	switch o {
	case OriginEphemeral:
		return "ephemeral"
	case OriginDatabase:
		return "database"
	default:
		return "unknown"
	}
}

// ReportID identifies a processing result together with its origin.
// Replaces string-prefix conventions for telling stored and ephemeral
// reports apart.
type ReportID struct {
	Origin Origin `json:"origin"`
	ID     string `json:"id"`
}

func NewEphemeralID() ReportID {
	return ReportID{Origin: OriginEphemeral, ID: uuid.NewString()}
}

// Store is a TTL-bounded in-memory store for processing results.
// Entries expire after the configured TTL and the store is capped at
// MaxSize, oldest evicted first.
type Store struct {
	entries  sync.Map // map[string]*entry
	config   Config
	log      zerolog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

type Config struct {
	// DefaultTTL is how long a result stays retrievable.
	DefaultTTL time.Duration

	// MaxSize caps the number of stored results. 0 means unlimited.
	MaxSize int

	// CleanupInterval defines how often expired entries are removed.
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultTTL:      30 * time.Minute,
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
}

func NewStore(config Config, log zerolog.Logger) *Store {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Minute
	}

	store := &Store{
		config:   config,
		log:      log.With().Str("component", "resultstore").Logger(),
		stopChan: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go store.cleanupLoop()
		store.log.Info().
			Dur("ttl", config.DefaultTTL).
			Int("max_size", config.MaxSize).
			Dur("cleanup_interval", config.CleanupInterval).
			Msg("Started result store cleanup routine")
	}

	return store
}

// Put stores value under a fresh ephemeral identifier and returns it.
func (s *Store) Put(value any) ReportID {
	id := NewEphemeralID()
	s.Set(id, value)
	return id
}

// Set stores value under an existing identifier, refreshing its TTL.
func (s *Store) Set(id ReportID, value any) {
	now := time.Now()
	s.entries.Store(id.ID, &entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(s.config.DefaultTTL),
	})
	s.enforceMaxSize()
}

// Get returns the stored value, or false when unknown or expired.
func (s *Store) Get(id ReportID) (any, bool) {
	v, ok := s.entries.Load(id.ID)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if time.Now().After(e.expiresAt) {
		s.entries.Delete(id.ID)
		return nil, false
	}
	return e.value, true
}

// Delete removes a stored result.
func (s *Store) Delete(id ReportID) {
	s.entries.Delete(id.ID)
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	n := 0
	now := time.Now()
	s.entries.Range(func(_, v any) bool {
		if now.Before(v.(*entry).expiresAt) {
			n++
		}
		return true
	})
	return n
}

// Stop terminates the cleanup routine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
			s.enforceMaxSize()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Store) removeExpired() {
	now := time.Now()
	removed := 0
	s.entries.Range(func(k, v any) bool {
		if now.After(v.(*entry).expiresAt) {
			s.entries.Delete(k)
			removed++
		}
		return true
	})
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("Removed expired results")
	}
}

func (s *Store) enforceMaxSize() {
	if s.config.MaxSize <= 0 {
		return
	}

	type keyed struct {
		key       any
		createdAt time.Time
	}
	var all []keyed
	s.entries.Range(func(k, v any) bool {
		all = append(all, keyed{key: k, createdAt: v.(*entry).createdAt})
		return true
	})
	if len(all) <= s.config.MaxSize {
		return
	}

	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })
	for _, e := range all[:len(all)-s.config.MaxSize] {
		s.entries.Delete(e.key)
	}
	s.log.Debug().Int("evicted", len(all)-s.config.MaxSize).Msg("Evicted oldest results")
}
