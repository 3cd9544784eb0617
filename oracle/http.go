// Package oracle talks to the external LLM decision sidecar. The core
// treats it as a black box: context in, decision out, any failure
// coerced to HOLD by the caller.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"perpsim/decision"
	"perpsim/journal"
)

// HTTPOracle POSTs the decision context as JSON to a sidecar endpoint
// and parses the response through the decision boundary validator.
type HTTPOracle struct {
	endpoint string
	apiKey   string
	client   *http.Client

	// Optional: per-call cost accounting lands in the journal so daily
	// net PnL can subtract it. Write failures are logged, not fatal.
	costs journal.Store
}

func NewHTTP(endpoint, apiKey string, timeout time.Duration, costs journal.Store) *HTTPOracle {
	return &HTTPOracle{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		costs:    costs,
	}
}

type decideResponse struct {
	decision.Decision
	Usage struct {
		Service   string  `json:"service"`
		TokensIn  int     `json:"tokens_in"`
		TokensOut int     `json:"tokens_out"`
		CostUSD   float64 `json:"cost_usd"`
	} `json:"usage"`
}

func (o *HTTPOracle) Decide(ctx context.Context, mc decision.Context) (decision.Decision, error) {
	payload, err := json.Marshal(mc)
	if err != nil {
		return decision.Decision{}, fmt.Errorf("oracle: marshal context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return decision.Decision{}, fmt.Errorf("oracle: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return decision.Decision{}, fmt.Errorf("oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decision.Decision{}, fmt.Errorf("oracle: status %d", resp.StatusCode)
	}

	var body decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decision.Decision{}, fmt.Errorf("%w: %v", decision.ErrMalformed, err)
	}

	dec := body.Decision
	if dec.Pair == "" {
		dec.Pair = mc.Pair
	}
	if err := dec.Validate(); err != nil {
		return decision.Decision{}, err
	}

	if o.costs != nil && body.Usage.CostUSD > 0 {
		if err := o.costs.InsertAPICost(journal.APICost{
			Service:   body.Usage.Service,
			TokensIn:  body.Usage.TokensIn,
			TokensOut: body.Usage.TokensOut,
			CostUSD:   body.Usage.CostUSD,
			Purpose:   "trade_decision",
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			log.Printf("oracle: record api cost: %v", err)
		}
	}

	return dec, nil
}
