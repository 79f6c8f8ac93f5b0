package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is a single hash-chained audit record. Each engine stage
// appends entries so a run's narrative can be verified end to end.
type Entry struct {
	Timestamp    string `json:"timestamp"`
	Stage        string `json:"stage"`
	Detail       string `json:"detail"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
}

// Trail is a tamper-evident audit log using hash chaining. A fresh
// trail is created per engine run.
type Trail struct {
	mu       sync.Mutex
	previous string
	entries  []*Entry
	now      func() time.Time
}

// NewTrail creates a trail initialized with a zero hash.
func NewTrail() *Trail {
	return &Trail{
		previous: strings.Repeat("0", 64),
		now:      time.Now,
	}
}

// NewTrailAt creates a trail with a fixed clock, for deterministic
// entries in tests.
func NewTrailAt(now func() time.Time) *Trail {
	t := NewTrail()
	t.now = now
	return t
}

// Append adds a stage entry to the chain and returns it.
func (t *Trail) Append(stage, format string, args ...any) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &Entry{
		Timestamp:    t.now().UTC().Format(time.RFC3339),
		Stage:        stage,
		Detail:       fmt.Sprintf(format, args...),
		PreviousHash: t.previous,
	}
	entry.Hash = hashEntry(entry.PreviousHash, entry.Timestamp, entry.Stage, entry.Detail)

	t.previous = entry.Hash
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns the recorded entries in append order.
func (t *Trail) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// VerifyChain checks that entries form an unbroken, untampered hash
// chain.
func VerifyChain(entries []*Entry) bool {
	for i, entry := range entries {
		prev := entry.PreviousHash
		if i > 0 && entries[i-1].Hash != prev {
			return false
		}
		if hashEntry(prev, entry.Timestamp, entry.Stage, entry.Detail) != entry.Hash {
			return false
		}
	}
	return true
}

func hashEntry(prev, timestamp, stage, detail string) string {
	sum := sha256.Sum256([]byte(prev + "|" + timestamp + "|" + stage + "|" + detail))
	return hex.EncodeToString(sum[:])
}
