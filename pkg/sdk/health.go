package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"
}

// Health reports component health. A degraded service still returns a
// status rather than an error; only transport failures error out.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return HealthStatus{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("sdk: health request: %w", err)
	}
	defer resp.Body.Close()

	// 503 carries a degraded report body, not an error response.
	var out HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HealthStatus{}, fmt.Errorf("sdk: decode health: %w", err)
	}
	return out, nil
}
