// Package learn implements the usage register: per-object usage
// counters keyed by canonical identity, a subject-to-command
// correlation table, and user favorites. Scores from here feed the
// ranking formula as additive bonuses.
package learn

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"beacon/internal/logging"
)

const (
	formatVersion = 1

	// Pruning keeps the register near this many entries over time.
	pruneThreshold = 100
	pruneGoal      = 500
	pruneFlux      = 2.0
)

// mnemonics holds the per-query-substring counts and the total use
// count for one object.
type mnemonics struct {
	Counts map[string]int `json:"counts,omitempty"`
	Total  int            `json:"total"`
}

func (m *mnemonics) increment(key string) {
	if key != "" {
		if m.Counts == nil {
			m.Counts = make(map[string]int)
		}
		m.Counts[key]++
	}
	m.Total++
}

// decrement lowers the total and the least-used mnemonic.
func (m *mnemonics) decrement() {
	if len(m.Counts) > 0 {
		least := ""
		for k, v := range m.Counts {
			if least == "" || v < m.Counts[least] {
				least = k
			}
		}
		if m.Counts[least] <= 1 {
			delete(m.Counts, least)
		} else {
			m.Counts[least]--
		}
	}
	if m.Total > 0 {
		m.Total--
	}
}

func (m *mnemonics) empty() bool { return m.Total <= 0 }

type registerData struct {
	Version     int                   `json:"version"`
	Mnemonics   map[string]*mnemonics `json:"mnemonics"`
	Correlation map[string]string     `json:"correlation"`
	Favorites   map[string]bool       `json:"favorites,omitempty"`
}

// Register is the persistent usage store. All methods are safe for
// concurrent use, though in practice mutation happens on the event
// loop.
type Register struct {
	mu   sync.Mutex
	path string
	data registerData
	log  *logging.Logger
}

// NewRegister creates a register persisting to dir/mnemonics.json.
func NewRegister(dir string) *Register {
	return &Register{
		path: filepath.Join(dir, "mnemonics.json"),
		data: registerData{
			Version:     formatVersion,
			Mnemonics:   make(map[string]*mnemonics),
			Correlation: make(map[string]string),
			Favorites:   make(map[string]bool),
		},
		log: logging.For("learn"),
	}
}

// Load reads the persisted register. A missing or corrupt file leaves
// the register empty; corruption is not an error.
func (r *Register) Load() {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return
	}
	var data registerData
	if err := json.Unmarshal(raw, &data); err != nil {
		r.log.Warnw("discarding unreadable register", "path", r.path, "error", err)
		return
	}
	if data.Mnemonics == nil {
		data.Mnemonics = make(map[string]*mnemonics)
	}
	if data.Correlation == nil {
		data.Correlation = make(map[string]string)
	}
	if data.Favorites == nil {
		data.Favorites = make(map[string]bool)
	}
	r.data = data
}

// Save writes the register atomically (temp file renamed into place)
// under a file lock. An empty register is never written; an oversized
// one is pruned first.
func (r *Register) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data.Mnemonics) == 0 && len(r.data.Correlation) == 0 {
		r.log.Debugw("not writing empty register")
		return nil
	}
	if len(r.data.Mnemonics) > pruneThreshold {
		r.pruneLocked()
	}

	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal register: %w", err)
	}

	lock := flock.New(r.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock register: %w", err)
	}
	defer lock.Unlock()

	tmp := fmt.Sprintf("%s.%d", r.path, os.Getpid())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write register: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace register: %w", err)
	}
	return nil
}

// RecordUse records that the object identified by id was selected or
// activated, with the query key that led to it.
func (r *Register) RecordUse(id, key string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	mn := r.data.Mnemonics[id]
	if mn == nil {
		mn = &mnemonics{}
		r.data.Mnemonics[id] = mn
	}
	mn.increment(key)
}

// Score returns the learned usage bonus for id against query key.
//
// Empty key: 50*(1 - 1/(total+1)). Otherwise 30*(1 - 1/(prefix+1)) +
// 50*(1 - 1/(exact+1)), where prefix sums counts of mnemonics the key
// prefixes. Favorites add a flat 7 either way.
func (r *Register) Score(id, key string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fav float64
	if r.data.Favorites[id] {
		fav = 7
	}
	mn := r.data.Mnemonics[id]
	if mn == nil {
		return fav
	}
	if key == "" {
		return fav + 50*(1-1.0/float64(mn.Total+1))
	}

	prefix := 0
	for m, c := range mn.Counts {
		if strings.HasPrefix(m, key) {
			prefix += c
		}
	}
	score := 30 * (1 - 1.0/float64(prefix+1))
	score += 50 * (1 - 1.0/float64(mn.Counts[key]+1))
	return fav + score
}

// SetCorrelation registers commandID as the learned default for
// subjectID.
func (r *Register) SetCorrelation(subjectID, commandID string) {
	r.mu.Lock()
	r.data.Correlation[subjectID] = commandID
	r.mu.Unlock()
}

// CorrelationBonus returns 50 when commandID is the learned default
// for subjectID.
func (r *Register) CorrelationBonus(commandID, subjectID string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subjectID != "" && r.data.Correlation[subjectID] == commandID {
		return 50
	}
	return 0
}

// HasAffinity reports whether any usage or correlation is recorded
// for id.
func (r *Register) HasAffinity(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mn := r.data.Mnemonics[id]; mn != nil && !mn.empty() {
		return true
	}
	_, ok := r.data.Correlation[id]
	return ok
}

// EraseAffinity removes every trace of id from the register.
func (r *Register) EraseAffinity(id string) {
	r.mu.Lock()
	delete(r.data.Mnemonics, id)
	delete(r.data.Correlation, id)
	delete(r.data.Favorites, id)
	r.mu.Unlock()
}

func (r *Register) AddFavorite(id string) {
	r.mu.Lock()
	r.data.Favorites[id] = true
	r.mu.Unlock()
}

func (r *Register) RemoveFavorite(id string) {
	r.mu.Lock()
	delete(r.data.Favorites, id)
	r.mu.Unlock()
}

func (r *Register) IsFavorite(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Favorites[id]
}

// Entry is one row of a register dump.
type Entry struct {
	ID       string
	Total    int
	Favorite bool
	Default  string
}

// Entries returns a dump of the register sorted by descending use
// count. Used by introspection tooling, not by ranking.
func (r *Register) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.data.Mnemonics))
	for id, mn := range r.data.Mnemonics {
		out = append(out, Entry{
			ID:       id,
			Total:    mn.Total,
			Favorite: r.data.Favorites[id],
			Default:  r.data.Correlation[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// pruneLocked decays entries probabilistically so the register drifts
// toward pruneGoal entries. Each entry is decremented with chance
// len*flux/goal^2, capped at 0.1 per pass.
func (r *Register) pruneLocked() {
	alpha := pruneFlux / float64(pruneGoal*pruneGoal)
	chance := float64(len(r.data.Mnemonics)) * alpha
	if chance > 0.1 {
		chance = 0.1
	}
	for id, mn := range r.data.Mnemonics {
		if rand.Float64() > chance {
			continue
		}
		mn.decrement()
		if mn.empty() {
			delete(r.data.Mnemonics, id)
		}
	}
	r.log.Debugw("pruned register", "entries", len(r.data.Mnemonics))
}
