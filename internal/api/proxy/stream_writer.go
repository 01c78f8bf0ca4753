package proxy

import (
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/ragproxy/internal/domain"
)

// streamWriter serializes all writes to one client stream. Enrichment
// subtasks push progress from their own goroutines; the mutex keeps each
// NDJSON line intact and the flush immediate.
type streamWriter struct {
	mu sync.Mutex
	w  gin.ResponseWriter
}

func newStreamWriter(w gin.ResponseWriter) *streamWriter {
	return &streamWriter{w: w}
}

// WriteEnvelope marshals one envelope and writes it as a line.
func (s *streamWriter) WriteEnvelope(env domain.StreamEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.WriteLine(data)
}

// WriteLine writes one line, appending the newline that guarantees
// client-side framing, and flushes.
func (s *streamWriter) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

// Flush flushes buffered response data to the client.
func (s *streamWriter) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
}
