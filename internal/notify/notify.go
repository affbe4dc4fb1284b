// Package notify pushes a summary of each successful merge batch to
// downstream observers over HTTP. Delivery is best-effort: a dead observer
// never blocks or fails a sync pass.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 4
)

// BatchPayload summarizes one merge batch for observers.
type BatchPayload struct {
	Account         string `json:"account"`
	PersonsInserted int    `json:"persons_inserted"`
	PersonsUpdated  int    `json:"persons_updated"`
	PersonsResolved int    `json:"persons_resolved"`
	PersonsDeleted  int    `json:"persons_deleted"`
	GroupsMerged    int    `json:"groups_merged"`
	GroupsDeleted   int    `json:"groups_deleted"`
	RowErrors       int    `json:"row_errors"`
	CompletedAt     string `json:"completed_at"`
}

// Notifier fans one payload out to a fixed set of observer URLs.
type Notifier struct {
	urls    []string
	client  *http.Client
	logger  *zap.Logger
	workers int
}

// New creates a notifier for the given observer URLs. Invalid URLs are
// dropped up front.
func New(urls []string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		urls:    normalizeURLs(urls, logger),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
		workers: defaultConcurrency,
	}
}

// NotifyBatch posts the payload to every observer, bounded by a small worker
// pool, and waits for delivery attempts to finish.
func (n *Notifier) NotifyBatch(payload BatchPayload) {
	if len(n.urls) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to marshal batch payload", zap.Error(err))
		return
	}

	jobs := make(chan string, len(n.urls))
	var wg sync.WaitGroup
	for i := 0; i < n.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				n.post(target, body)
			}
		}()
	}
	for _, target := range n.urls {
		jobs <- target
	}
	close(jobs)
	wg.Wait()
}

func (n *Notifier) post(target string, body []byte) {
	resp, err := n.client.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("batch notification failed",
			zap.String("url", target), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("batch notification rejected",
			zap.String("url", target), zap.Int("status", resp.StatusCode))
	}
}

func normalizeURLs(urls []string, logger *zap.Logger) []string {
	seen := make(map[string]struct{}, len(urls))
	var out []string
	for _, raw := range urls {
		trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
		if trimmed == "" {
			continue
		}
		parsed, err := url.Parse(trimmed)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			logger.Warn("skipping invalid observer url", zap.String("url", raw))
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
