package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Geocoder описывает обратное геокодирование координат в адрес.
type Geocoder interface {
	Reverse(ctx context.Context, latitude, longitude float64) (string, error)
}

// Client — клиент Nominatim-совместимого сервиса обратного геокодирования.
// Между запросами выдерживается минимальный интервал: публичный Nominatim
// допускает не более одного запроса в секунду.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	minInterval time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// NewClient создаёт клиент геокодирования.
func NewClient(baseURL string, minInterval time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		minInterval: minInterval,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error,omitempty"`
}

// Reverse возвращает человекочитаемый адрес для точки.
func (c *Client) Reverse(ctx context.Context, latitude, longitude float64) (string, error) {
	if err := c.throttle(ctx); err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", strconv.FormatFloat(latitude, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(longitude, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("geo: не удалось собрать запрос: %w", err)
	}
	req.Header.Set("User-Agent", "taskbazaar-backend/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo: запрос геокодирования не удался: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo: сервис геокодирования вернул статус %d", resp.StatusCode)
	}

	var parsed reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("geo: не удалось разобрать ответ: %w", err)
	}

	if parsed.Error != "" || parsed.DisplayName == "" {
		return "", fmt.Errorf("geo: адрес для точки не найден")
	}

	return parsed.DisplayName, nil
}

// throttle выдерживает минимальный интервал между вызовами.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	wait := c.minInterval - time.Since(c.lastCall)
	if wait > 0 {
		c.lastCall = c.lastCall.Add(c.minInterval)
	} else {
		c.lastCall = time.Now()
	}
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
