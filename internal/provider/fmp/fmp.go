package fmp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"quotecache/internal/httpx"
	"quotecache/internal/provider"
	"quotecache/internal/quote"
)

const defaultEndpoint = "https://financialmodelingprep.com/api/v3"

type Config struct {
	Name     string
	Endpoint string
	APIKey   string
}

// Provider fetches quotes from Financial Modeling Prep. The /quote endpoint
// takes a comma-joined symbol list, so batch fetches are one request.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "fmp"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

type quotePayload struct {
	Symbol            string  `json:"symbol"`
	Price             float64 `json:"price"`
	Change            float64 `json:"change"`
	ChangesPercentage float64 `json:"changesPercentage"`
	PreviousClose     float64 `json:"previousClose"`
	Open              float64 `json:"open"`
	DayHigh           float64 `json:"dayHigh"`
	DayLow            float64 `json:"dayLow"`
	Volume            int64   `json:"volume"`
}

func (p *Provider) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	quotes, err := p.FetchQuotes(ctx, []string{symbol})
	if err != nil {
		return quote.Quote{}, err
	}
	q, ok := quotes[symbol]
	if !ok {
		return quote.Quote{}, provider.Errorf(p.cfg.Name, "no usable price for %s", symbol)
	}
	return q, nil
}

func (p *Provider) FetchQuotes(ctx context.Context, symbols []string) (map[string]quote.Quote, error) {
	if len(symbols) == 0 {
		return map[string]quote.Quote{}, nil
	}

	u := fmt.Sprintf("%s/quote/%s?apikey=%s",
		p.cfg.Endpoint,
		url.PathEscape(strings.Join(symbols, ",")),
		url.QueryEscape(p.cfg.APIKey))

	var body []quotePayload
	if err := p.client.GetJSON(ctx, u, nil, &body); err != nil {
		return nil, provider.Wrap(p.cfg.Name, "quote request failed", err)
	}

	now := time.Now().UTC()
	out := make(map[string]quote.Quote, len(body))
	for _, pl := range body {
		if pl.Price <= 0 {
			continue
		}
		sym := quote.NormalizeSymbol(pl.Symbol)
		out[sym] = quote.Quote{
			Symbol:        sym,
			Price:         pl.Price,
			Change:        pl.Change,
			ChangePercent: pl.ChangesPercentage,
			PreviousClose: pl.PreviousClose,
			Open:          pl.Open,
			High:          pl.DayHigh,
			Low:           pl.DayLow,
			Volume:        pl.Volume,
			Source:        p.cfg.Name,
			FetchedAt:     now,
		}
	}
	if len(out) == 0 {
		return nil, provider.Errorf(p.cfg.Name, "no usable prices in response")
	}
	return out, nil
}
