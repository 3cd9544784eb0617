package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"perpsim/market"
)

const defaultWSBase = "wss://fstream.binance.com/stream"

// BinanceFeed streams 1m klines and mark-price/funding updates for a
// set of pairs over one combined futures websocket connection. It
// reconnects with exponential backoff and never gives up while the
// context is alive.
type BinanceFeed struct {
	base  string
	pairs []string

	ticks   chan market.Tick
	funding chan market.FundingUpdate

	// OnReconnect is an optional metrics hook.
	OnReconnect func()
}

func NewBinance(base string, pairs []string) *BinanceFeed {
	if base == "" {
		base = defaultWSBase
	}
	return &BinanceFeed{
		base:    base,
		pairs:   pairs,
		ticks:   make(chan market.Tick, 1024),
		funding: make(chan market.FundingUpdate, 64),
	}
}

func (f *BinanceFeed) Ticks() <-chan market.Tick            { return f.ticks }
func (f *BinanceFeed) Funding() <-chan market.FundingUpdate { return f.funding }

func (f *BinanceFeed) url() string {
	streams := make([]string, 0, 2*len(f.pairs))
	for _, p := range f.pairs {
		lp := strings.ToLower(p)
		streams = append(streams, lp+"@kline_1m", lp+"@markPrice")
	}
	return f.base + "?streams=" + strings.Join(streams, "/")
}

// Run connects and pumps messages until ctx is cancelled.
func (f *BinanceFeed) Run(ctx context.Context) error {
	defer close(f.ticks)
	defer close(f.funding)

	backoff := time.Second
	for {
		if err := f.pump(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("feed: connection lost: %v (reconnecting in %s)", err, backoff)
			if f.OnReconnect != nil {
				f.OnReconnect()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *BinanceFeed) pump(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	log.Printf("feed: connected, %d pairs", len(f.pairs))

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := f.dispatch(raw); err != nil {
			log.Printf("feed: drop message: %v", err)
		}
	}
}

// Combined-stream envelope plus the two event payloads we care about.
type wsEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wsKline struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	K      struct {
		Close string `json:"c"`
		High  string `json:"h"`
		Low   string `json:"l"`
		Final bool   `json:"x"`
	} `json:"k"`
}

type wsMarkPrice struct {
	Event       string `json:"e"`
	Symbol      string `json:"s"`
	FundingRate string `json:"r"`
}

func (f *BinanceFeed) dispatch(raw []byte) error {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("envelope: %w", err)
	}

	switch {
	case strings.Contains(env.Stream, "@kline"):
		var k wsKline
		if err := json.Unmarshal(env.Data, &k); err != nil {
			return fmt.Errorf("kline: %w", err)
		}
		price, err1 := strconv.ParseFloat(k.K.Close, 64)
		high, err2 := strconv.ParseFloat(k.K.High, 64)
		low, err3 := strconv.ParseFloat(k.K.Low, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return fmt.Errorf("kline %s: bad prices", k.Symbol)
		}
		f.send(market.Tick{
			Pair:  k.Symbol,
			Price: price,
			High:  high,
			Low:   low,
			Final: k.K.Final,
			Time:  time.Now().UTC(),
		})

	case strings.Contains(env.Stream, "@markPrice"):
		var m wsMarkPrice
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return fmt.Errorf("markPrice: %w", err)
		}
		rate, err := strconv.ParseFloat(m.FundingRate, 64)
		if err != nil {
			return fmt.Errorf("markPrice %s: bad rate", m.Symbol)
		}
		select {
		case f.funding <- market.FundingUpdate{Pair: m.Symbol, Rate: rate, Time: time.Now().UTC()}:
		default:
			// Funding moves slowly; dropping a stale update is fine.
		}
	}
	return nil
}

func (f *BinanceFeed) send(t market.Tick) {
	select {
	case f.ticks <- t:
	default:
		// Drop rather than block the read pump on a slow consumer.
		log.Printf("feed: tick buffer full, dropped %s", t.Pair)
	}
}
