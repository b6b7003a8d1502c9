// Package plantapi fetches the plant-list snapshot from the garden API.
package plantapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prite36/irrigation-remote/internal/models"
)

const defaultTimeout = 10 * time.Second

// Client reads GET {baseURL}/plants.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// FetchPlants returns every plant with its current irrigation fields.
func (c *Client) FetchPlants(ctx context.Context) ([]models.PlantRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/plants", nil)
	if err != nil {
		return nil, fmt.Errorf("build plants request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get plants: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get plants: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []models.PlantRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode plants: %w", err)
	}
	return records, nil
}
