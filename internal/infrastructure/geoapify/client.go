package geoapify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/snaptrack/internal/config"
	"github.com/snaptrack/internal/domain"
	"github.com/snaptrack/internal/domain/repository"
	apperrors "github.com/snaptrack/internal/pkg/errors"
)

// outcome классифицирует результат одной попытки запроса
type outcome int

const (
	outcomeOK outcome = iota
	// outcomeTransient - сеть, 429, 5xx, битое тело: можно повторить
	outcomeTransient
	// outcomeTerminal - прочие 4xx: повтор бессмыслен, батч деградирует
	outcomeTerminal
	// outcomeFatal - авторизация или отмена: прогон прерывается
	outcomeFatal
)

type client struct {
	httpClient *http.Client
	requestURL string
	mode       string
	maxRetries int
	retryBase  time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient создает новый клиент для Geoapify Map Matching API.
// Лимитер запросов принадлежит экземпляру клиента, то есть одному прогону:
// параллельные прогоны по разным файлам друг другу не мешают.
func NewClient(geoCfg *config.GeoapifyConfig, snapCfg *config.SnapConfig, logger *zap.Logger) repository.SnapRepository {
	return &client{
		httpClient: &http.Client{
			Timeout: geoCfg.RequestTimeout,
		},
		requestURL: buildRequestURL(geoCfg.BaseURL, geoCfg.APIKey),
		mode:       snapCfg.Mode,
		maxRetries: snapCfg.MaxRetries,
		retryBase:  snapCfg.RetryBaseDelay,
		limiter:    rate.NewLimiter(rate.Limit(float64(snapCfg.RateLimitPerMin)/60.0), 1),
		logger:     logger,
	}
}

// buildRequestURL добавляет apiKey как query-параметр
func buildRequestURL(baseURL, apiKey string) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + "apiKey=" + apiKey
}

type waypoint struct {
	Timestamp string    `json:"timestamp"`
	Location  []float64 `json:"location"`
}

type matchRequest struct {
	Mode      string     `json:"mode"`
	Waypoints []waypoint `json:"waypoints"`
}

type matchResponse struct {
	Features []struct {
		Properties struct {
			Waypoints []struct {
				OriginalIndex int       `json:"original_index"`
				Location      []float64 `json:"location"`
			} `json:"waypoints"`
		} `json:"properties"`
	} `json:"features"`
}

// SnapBatch отправляет батч на привязку с ограничением частоты запросов
// и ограниченным числом повторов с экспоненциальной задержкой
func (c *client) SnapBatch(ctx context.Context, batch domain.Batch) (*domain.SnapResult, error) {
	payload, err := json.Marshal(c.buildBody(batch))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	delay := c.retryBase
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying snap request",
				zap.Int("batch_index", batch.Index),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", c.maxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		// The limiter is waited on before every attempt, retries included,
		// so backoff never bursts past the tier ceiling.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		points, matched, out, err := c.doRequest(ctx, payload, batch)
		switch out {
		case outcomeOK:
			return c.buildResult(batch, points, matched), nil
		case outcomeFatal:
			return nil, err
		case outcomeTerminal:
			c.logger.Error("Snap request failed permanently",
				zap.Int("batch_index", batch.Index),
				zap.Error(err))
			return failureResult(batch, err), nil
		case outcomeTransient:
			lastErr = err
		}
	}

	c.logger.Error("Snap retries exhausted",
		zap.Int("batch_index", batch.Index),
		zap.Int("max_retries", c.maxRetries),
		zap.Error(lastErr))

	return failureResult(batch, lastErr), nil
}

func (c *client) buildBody(batch domain.Batch) matchRequest {
	waypoints := make([]waypoint, 0, len(batch.Points))
	for i, p := range batch.Points {
		ts := time.Unix(int64(i)*10, 0).UTC()
		if p.Timestamp != nil {
			ts = p.Timestamp.UTC()
		}
		waypoints = append(waypoints, waypoint{
			Timestamp: ts.Format("2006-01-02T15:04:05.000Z"),
			Location:  []float64{p.Lon, p.Lat},
		})
	}
	return matchRequest{Mode: c.mode, Waypoints: waypoints}
}

// doRequest выполняет одну попытку и классифицирует исход
func (c *client) doRequest(ctx context.Context, payload []byte, batch domain.Batch) ([]domain.Point, int, outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, outcomeFatal, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Calling map matching API",
		zap.Int("batch_index", batch.Index),
		zap.Int("waypoints", len(batch.Points)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, outcomeFatal, ctx.Err()
		}
		return nil, 0, outcomeTransient, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, outcomeFatal, apperrors.NewAuthError(resp.StatusCode, string(body))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, outcomeTransient, fmt.Errorf("snapping service error: status %d, body: %s", resp.StatusCode, truncate(string(body), 500))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, outcomeTerminal, fmt.Errorf("snapping service rejected batch: status %d, body: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var matchResp matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&matchResp); err != nil {
		return nil, 0, outcomeTransient, fmt.Errorf("failed to decode response: %w", err)
	}

	points, matched := c.mapResponse(batch, &matchResp)
	return points, matched, outcomeOK, nil
}

// mapResponse раскладывает привязанные точки по исходным позициям батча.
// Точка, которую сервис не вернул, остается исходной.
func (c *client) mapResponse(batch domain.Batch, resp *matchResponse) ([]domain.Point, int) {
	snapped := make([]domain.Point, len(batch.Points))
	copy(snapped, batch.Points)

	seen := make([]bool, len(snapped))
	matched := 0
	for _, f := range resp.Features {
		for _, wp := range f.Properties.Waypoints {
			if wp.OriginalIndex < 0 || wp.OriginalIndex >= len(snapped) || len(wp.Location) < 2 {
				continue
			}
			snapped[wp.OriginalIndex].Lon = wp.Location[0]
			snapped[wp.OriginalIndex].Lat = wp.Location[1]
			if !seen[wp.OriginalIndex] {
				seen[wp.OriginalIndex] = true
				matched++
			}
		}
	}

	return snapped, matched
}

func (c *client) buildResult(batch domain.Batch, points []domain.Point, matched int) *domain.SnapResult {
	status := domain.SnapStatusSuccess
	if matched < len(points) {
		status = domain.SnapStatusPartial
		c.logger.Warn("Service returned fewer waypoints than sent",
			zap.Int("batch_index", batch.Index),
			zap.Int("sent", len(points)),
			zap.Int("matched", matched))
	}

	return &domain.SnapResult{
		BatchIndex: batch.Index,
		Status:     status,
		Points:     points,
	}
}

func failureResult(batch domain.Batch, err error) *domain.SnapResult {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return &domain.SnapResult{
		BatchIndex: batch.Index,
		Status:     domain.SnapStatusFailure,
		Err:        detail,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
