package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quotecache/internal/httpx"
	"quotecache/internal/provider"
	"quotecache/internal/quote"
)

const defaultEndpoint = "https://finnhub.io/api/v1"

type Config struct {
	Name     string
	Endpoint string
	APIKey   string
}

// Provider fetches single-symbol quotes from the Finnhub /quote endpoint.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "finnhub"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

// quoteResponse is Finnhub's compact field naming: c=current, d=change,
// dp=percent change, pc=previous close.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	Open          float64 `json:"o"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	PreviousClose float64 `json:"pc"`
}

func (p *Provider) FetchQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	// Finnhub uses a hyphen where share classes carry a period (BRK.B -> BRK-B).
	vendorSymbol := strings.ReplaceAll(symbol, ".", "-")

	u := fmt.Sprintf("%s/quote?symbol=%s", p.cfg.Endpoint, url.QueryEscape(vendorSymbol))
	header := http.Header{"X-Finnhub-Token": []string{p.cfg.APIKey}}

	var body quoteResponse
	if err := p.client.GetJSON(ctx, u, header, &body); err != nil {
		return quote.Quote{}, provider.Wrap(p.cfg.Name, "quote request failed", err)
	}
	// Finnhub answers unknown symbols with an all-zero payload.
	if body.Current <= 0 {
		return quote.Quote{}, provider.Errorf(p.cfg.Name, "no usable price for %s", symbol)
	}

	return quote.Quote{
		Symbol:        symbol,
		Price:         body.Current,
		Change:        body.Change,
		ChangePercent: body.ChangePercent,
		PreviousClose: body.PreviousClose,
		Open:          body.Open,
		High:          body.High,
		Low:           body.Low,
		Source:        p.cfg.Name,
		FetchedAt:     time.Now().UTC(),
	}, nil
}
