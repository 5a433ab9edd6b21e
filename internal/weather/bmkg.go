package weather

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

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	forecastPath      = "/publik/prakiraan-cuaca"
	defaultBaseURL    = "https://api.bmkg.go.id"
	defaultRegionCode = "31.71.03.1001"
	defaultTimeout    = 5 * time.Second
)

// ErrNoForecast indicates the response did not contain a forecast entry.
var ErrNoForecast = errors.New("bmkg response has no forecast entry")

// BMKGOptions parameterise the BMKG forecast fetcher.
type BMKGOptions struct {
	BaseURL    string
	RegionCode string
	Timeout    time.Duration
	UserAgent  string
}

// BMKG fetches public forecasts from the Indonesian meteorological agency.
type BMKG struct {
	opts    BMKGOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBMKG constructs a forecast fetcher.
func NewBMKG(opts BMKGOptions, logger zerolog.Logger) *BMKG {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RegionCode == "" {
		opts.RegionCode = defaultRegionCode
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &BMKG{
		opts:    opts,
		logger:  logger.With().Str("component", "weather_bmkg").Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: baseURL,
	}
}

// Fetch returns the first forecast entry of the first forecast day.
func (b *BMKG) Fetch(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	endpoint := b.baseURL + forecastPath + "?adm4=" + url.QueryEscape(b.opts.RegionCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create forecast request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	b.logger.Debug().Str("url", endpoint).Msg("fetching forecast")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send forecast request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read forecast body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var res forecastResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}

	if len(res.Data) == 0 || len(res.Data[0].Cuaca) == 0 || len(res.Data[0].Cuaca[0]) == 0 {
		return nil, ErrNoForecast
	}
	nearest := res.Data[0].Cuaca[0][0]

	snap := &Snapshot{
		ForecastTime: nearest.LocalDatetime,
		Description:  nearest.WeatherDescEn,
		Temperature:  nearest.T,
		Humidity:     nearest.Hu,
		WindSpeed:    nearest.Ws,
		CloudCover:   nearest.Tcc,
		HeavyRain:    IsHeavyRain(nearest.WeatherDescEn),
	}
	b.logger.Debug().Str("description", snap.Description).Bool("heavy_rain", snap.HeavyRain).Msg("forecast received")
	return snap, nil
}

type forecastResponse struct {
	Data []struct {
		Cuaca [][]forecastEntry `json:"cuaca"`
	} `json:"data"`
}

type forecastEntry struct {
	LocalDatetime string              `json:"local_datetime"`
	WeatherDescEn string              `json:"weather_desc_en"`
	T             decimal.NullDecimal `json:"t"`
	Hu            decimal.NullDecimal `json:"hu"`
	Ws            decimal.NullDecimal `json:"ws"`
	Tcc           decimal.NullDecimal `json:"tcc"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("bmkg api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("bmkg api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("bmkg api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("bmkg api error (%d)", status)
}

var _ Fetcher = (*BMKG)(nil)
