// Package weather is a small Open-Meteo client used by the get_weather tool.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	requestTimeout     = 15 * time.Second
	maxBodyBytes       = 512 * 1024
	userAgentString    = "calendarbot/0.1"
	dateLayout         = "2006-01-02"
)

// ErrLocationNotFound is returned when geocoding yields no match.
var ErrLocationNotFound = errors.New("location not found")

// Config points the client at Open-Meteo compatible endpoints.
type Config struct {
	GeocodeURL  string
	ForecastURL string
	Timeout     time.Duration
}

type Client struct {
	http        *http.Client
	geocodeURL  string
	forecastURL string
}

func NewClient(cfg Config) *Client {
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = defaultGeocodeURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = defaultForecastURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = requestTimeout
	}
	return &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		geocodeURL:  cfg.GeocodeURL,
		forecastURL: cfg.ForecastURL,
	}
}

// Place is a geocoded location.
type Place struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// Forecast is the daily outlook for one place and day.
type Forecast struct {
	Place                    Place   `json:"place"`
	Date                     string  `json:"date"`
	Condition                string  `json:"condition"`
	WeatherCode              int     `json:"weather_code"`
	TempMaxC                 float64 `json:"temp_max_c"`
	TempMinC                 float64 `json:"temp_min_c"`
	PrecipitationProbability int     `json:"precipitation_probability"`
}

// Forecast geocodes location and fetches the daily forecast for date.
// A zero date means today in the place's zone.
func (c *Client) Forecast(ctx context.Context, location string, date time.Time) (*Forecast, error) {
	place, err := c.Geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	day := "today"
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", place.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", place.Longitude))
	q.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max")
	q.Set("timezone", "auto")
	if date.IsZero() {
		q.Set("forecast_days", "1")
	} else {
		day = date.Format(dateLayout)
		q.Set("start_date", day)
		q.Set("end_date", day)
	}

	var resp forecastResponse
	if err := c.getJSON(ctx, c.forecastURL+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("forecast for %s: %w", place.Name, err)
	}
	d := resp.Daily
	if len(d.Time) == 0 || len(d.WeatherCode) == 0 || len(d.TempMax) == 0 || len(d.TempMin) == 0 {
		return nil, fmt.Errorf("no forecast for %s on %s", place.Name, day)
	}
	f := &Forecast{
		Place:       *place,
		Date:        d.Time[0],
		WeatherCode: d.WeatherCode[0],
		Condition:   Describe(d.WeatherCode[0]),
		TempMaxC:    d.TempMax[0],
		TempMinC:    d.TempMin[0],
	}
	if len(d.PrecipProb) > 0 && d.PrecipProb[0] != nil {
		f.PrecipitationProbability = *d.PrecipProb[0]
	}
	return f, nil
}

// Geocode resolves a place name to coordinates.
func (c *Client) Geocode(ctx context.Context, name string) (*Place, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")
	q.Set("format", "json")

	var resp geocodeResponse
	if err := c.getJSON(ctx, c.geocodeURL+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", name, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, name)
	}
	p := resp.Results[0]
	return &p, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgentString)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

type geocodeResponse struct {
	Results []Place `json:"results"`
}

type forecastResponse struct {
	Daily struct {
		Time        []string  `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		PrecipProb  []*int    `json:"precipitation_probability_max"`
	} `json:"daily"`
}

// Describe maps a WMO weather code to text.
func Describe(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	}
	return "unknown"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
