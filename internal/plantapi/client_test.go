package plantapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPlants(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/plants", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 5, "name": "Fern", "irrigation_mode": "manual",
			 "irrigation_start_at": "2024-05-01T08:00:00Z", "irrigation_end_at": "2024-05-01T08:05:00Z"},
			{"id": 7, "name": "Basil", "irrigation_mode": "smart", "irrigation_session_id": "S9"},
			{"id": 9, "name": "Mint", "irrigation_mode": null}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", "secret")
	records, err := c.FetchPlants(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, int64(5), records[0].ID)
	require.NotNil(t, records[0].IrrigationEndAt)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 5, 0, 0, time.UTC), records[0].IrrigationEndAt.UTC())
	assert.Equal(t, "S9", records[1].IrrigationSessionID)
	assert.Empty(t, records[2].IrrigationMode)
	assert.Nil(t, records[2].IrrigationEndAt)
}

func TestFetchPlantsWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, "").FetchPlants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchPlantsErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusBadGateway, "upstream down", "status 502: upstream down"},
		{"bad json", http.StatusOK, `{"id":`, "decode plants"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "").FetchPlants(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}
