package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	logx "borsabot/pkg/logx"
)

// Feed failure taxonomy. Both sentinels match ErrFeedUnavailable, so callers
// that only care about "could we reach the exchange" can test once.
var (
	ErrFeedUnavailable = errors.New("market feed unavailable")
	ErrFeedTimeout     = fmt.Errorf("feed timeout: %w", ErrFeedUnavailable)
	ErrFeedTransport   = fmt.Errorf("feed transport: %w", ErrFeedUnavailable)
)

// GroupSnapshot is one aggregated price/quantity record for a commodity group
// at a point in time. Snapshots are immutable once built; the store supersedes
// them, it never mutates them.
type GroupSnapshot struct {
	Group      string
	Min        decimal.Decimal
	Max        decimal.Decimal
	Avg        decimal.Decimal
	Quantity   int64
	CapturedAt time.Time

	// Products carries the constituent rows of the group as reported by the
	// bulletin. They are not persisted; the stored record is the aggregate.
	Products []ProductQuote
}

type ProductQuote struct {
	Name     string
	Min      decimal.Decimal
	Max      decimal.Decimal
	Avg      decimal.Decimal
	Quantity int64
}

type Config struct {
	// URL is the bulletin endpoint. Fetch appends the current date in
	// YYYY-MM-DD form, the way the exchange API expects it.
	URL     string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
	now  func() time.Time
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
		now:  time.Now,
	}
}

// bulletinRow is one product row of the exchange bulletin.
//
// Product prices arrive as locale-formatted strings with a comma decimal
// separator ("12,50"); group prices arrive as integers scaled by 10^4.
type bulletinRow struct {
	ProductName string `json:"UrunGrubu"`
	Quantity    int64  `json:"TopMiktar"`
	MinPrice    string `json:"MinFiyat"`
	MaxPrice    string `json:"MaxFiyat"`
	AvgPrice    string `json:"AvgFiyat"`

	GroupName string `json:"GrupAdi"`
	GroupMin  int64  `json:"GrupMinFiyat"`
	GroupMax  int64  `json:"GrupMaxFiyat"`
	GroupAvg  int64  `json:"GrupOrtFiyat"`
}

// Fetch downloads today's bulletin and aggregates it per commodity group.
//
// An empty bulletin is a valid outcome: Fetch returns an empty non-nil map and
// a nil error, distinct from ErrFeedTimeout/ErrFeedTransport failures.
func (c *Client) Fetch(ctx context.Context) (map[string]GroupSnapshot, error) {
	day := c.now().Format("2006-01-02")
	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/" + day

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedTransport, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return nil, fmt.Errorf("%w: %v", ErrFeedTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFeedTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFeedTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFeedTransport, err)
	}

	var rows []bulletinRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode bulletin: %v", ErrFeedTransport, err)
	}

	snaps, err := aggregate(rows, c.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedTransport, err)
	}
	return snaps, nil
}

// aggregate folds product rows into per-group snapshots, summing constituent
// quantities. Group prices are the exchange-provided aggregates.
func aggregate(rows []bulletinRow, capturedAt time.Time) (map[string]GroupSnapshot, error) {
	groups := make(map[string]GroupSnapshot, len(rows))

	for i, row := range rows {
		name := strings.TrimSpace(row.GroupName)
		if name == "" {
			continue
		}

		min, err := parseCommaDecimal(row.MinPrice)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): min price: %v", i, row.ProductName, err)
		}
		max, err := parseCommaDecimal(row.MaxPrice)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): max price: %v", i, row.ProductName, err)
		}
		avg, err := parseCommaDecimal(row.AvgPrice)
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): avg price: %v", i, row.ProductName, err)
		}

		g, ok := groups[name]
		if !ok {
			g = GroupSnapshot{
				Group:      name,
				Min:        decimal.New(row.GroupMin, -4),
				Max:        decimal.New(row.GroupMax, -4),
				Avg:        decimal.New(row.GroupAvg, -4),
				CapturedAt: capturedAt,
			}
		}
		g.Quantity += row.Quantity
		g.Products = append(g.Products, ProductQuote{
			Name:     strings.TrimSpace(row.ProductName),
			Min:      min,
			Max:      max,
			Avg:      avg,
			Quantity: row.Quantity,
		})
		groups[name] = g
	}

	return groups, nil
}

// parseCommaDecimal converts a locale-formatted price ("1.234,56" or "12,50")
// into a decimal value.
func parseCommaDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	// Thousands dots first, then the decimal comma.
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", s)
	}
	return d, nil
}
