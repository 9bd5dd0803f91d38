package twelvedata

import (
	"context"
	"strconv"
	"time"

	"quotecache/internal/provider"
	"quotecache/internal/quote"
)

// Provider adapts the Twelve Data API client to the canonical provider
// contract. It supports batch fetches natively.
type Provider struct {
	name   string
	client *APIClient
}

func NewProvider(name string, client *APIClient) *Provider {
	if name == "" {
		name = "twelvedata"
	}
	return &Provider{name: name, client: client}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	quotes, err := p.FetchQuotes(ctx, []string{symbol})
	if err != nil {
		return quote.Quote{}, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return quote.Quote{}, provider.Errorf(p.name, "no usable price for %s", symbol)
	}
	return q, nil
}

func (p *Provider) FetchQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, error) {
	payloads, err := p.client.GetQuotes(ctx, symbols)
	if err != nil {
		return nil, provider.Wrap(p.name, "quote request failed", err)
	}

	now := time.Now().UTC()
	out := make(map[string]quote.Quote, len(payloads))
	for _, pl := range payloads {
		q, ok := p.toQuote(pl, now)
		if !ok {
			continue
		}
		out[q.Symbol] = q
	}
	if len(out) == 0 {
		return nil, provider.Errorf(p.name, "no usable prices in response")
	}
	return out, nil
}

func (p *Provider) toQuote(pl quotePayload, now time.Time) (quote.Quote, bool) {
	price := parseFloat(pl.Close)
	if price <= 0 {
		return quote.Quote{}, false
	}
	return quote.Quote{
		Symbol:        quote.NormalizeSymbol(pl.Symbol),
		Price:         price,
		Change:        parseFloat(pl.Change),
		ChangePercent: parseFloat(pl.PercentChange),
		PreviousClose: parseFloat(pl.PreviousClose),
		Open:          parseFloat(pl.Open),
		High:          parseFloat(pl.High),
		Low:           parseFloat(pl.Low),
		Volume:        parseInt(pl.Volume),
		Source:        p.name,
		FetchedAt:     now,
	}, true
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
