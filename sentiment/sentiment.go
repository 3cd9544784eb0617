// Package sentiment polls the crypto fear/greed index. The value feeds
// the risk validator's confidence floor; everything else ignores it.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const defaultEndpoint = "https://api.alternative.me/fng/"

// Poller caches the most recent fear/greed reading. Zero value of the
// index is never returned: unknown reads as neutral 50.
type Poller struct {
	endpoint string
	client   *http.Client

	mu        sync.Mutex
	value     int
	fetchedAt time.Time
}

func NewPoller(endpoint string) *Poller {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Poller{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type fngResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// Fetch refreshes the cached index value.
func (p *Poller) Fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return fmt.Errorf("fear/greed: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fear/greed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fear/greed: status %d", resp.StatusCode)
	}

	var body fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("fear/greed: decode: %w", err)
	}
	if len(body.Data) == 0 {
		return fmt.Errorf("fear/greed: empty response")
	}

	v, err := strconv.Atoi(body.Data[0].Value)
	if err != nil || v < 0 || v > 100 {
		return fmt.Errorf("fear/greed: bad value %q", body.Data[0].Value)
	}

	p.mu.Lock()
	p.value = v
	p.fetchedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// Current returns the cached index, neutral 50 if never fetched.
func (p *Poller) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetchedAt.IsZero() {
		return 50
	}
	return p.value
}
