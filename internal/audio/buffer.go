package audio

import (
	"sync"
	"time"
)

// Collector accumulates capture chunks for one recording session. Chunks are
// kept in delivery order; Append is the only way to add data.
type Collector struct {
	sessionID string

	chunks     [][]byte
	totalBytes int

	// Sequence tracking
	nextSeq uint32 // Sequence assigned to the next appended chunk

	// Timing and metadata
	firstChunk time.Time
	lastUpdate time.Time

	mu sync.RWMutex
}

// CollectorStats represents collector statistics for monitoring
type CollectorStats struct {
	SessionID  string    `json:"session_id"`
	Chunks     int       `json:"chunks"`
	TotalBytes int       `json:"total_bytes"`
	FirstChunk time.Time `json:"first_chunk,omitempty"`
	LastUpdate time.Time `json:"last_update,omitempty"`
}

// NewCollector creates an empty collector for the given session
func NewCollector(sessionID string) *Collector {
	return &Collector{
		sessionID: sessionID,
		chunks:    make([][]byte, 0, 64),
	}
}

// Append copies chunk onto the end of the sequence and returns its sequence
// number. Empty chunks are ignored and report ok=false.
func (c *Collector) Append(chunk []byte) (seq uint32, ok bool) {
	if len(chunk) == 0 {
		return 0, false
	}

	data := make([]byte, len(chunk))
	copy(data, chunk)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.chunks) == 0 {
		c.firstChunk = now
	}
	c.lastUpdate = now

	c.chunks = append(c.chunks, data)
	c.totalBytes += len(data)

	seq = c.nextSeq
	c.nextSeq++
	return seq, true
}

// Drain returns all collected chunks in order and empties the collector
func (c *Collector) Drain() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunks := c.chunks
	c.chunks = nil
	c.totalBytes = 0
	return chunks
}

// Reset discards all collected chunks
func (c *Collector) Reset() {
	c.Drain()
}

// Len returns the number of collected chunks
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks)
}

// TotalBytes returns the number of collected bytes
func (c *Collector) TotalBytes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalBytes
}

// GetStats returns current collector statistics
func (c *Collector) GetStats() CollectorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CollectorStats{
		SessionID:  c.sessionID,
		Chunks:     len(c.chunks),
		TotalBytes: c.totalBytes,
		FirstChunk: c.firstChunk,
		LastUpdate: c.lastUpdate,
	}
}
