package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "GPS-Tracker-App/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))

		switch r.URL.Query().Get("lat") {
		case "37.779":
			w.Write([]byte(`{"display_name": "Market Street, San Francisco"}`))
		case "1":
			w.Write([]byte(`{"error": "Unable to geocode"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "GPS-Tracker-App/1.0")
	ctx := context.Background()

	addr, err := c.Reverse(ctx, 37.779, -122.41)
	require.NoError(t, err)
	assert.Equal(t, "Market Street, San Francisco", addr)

	_, err = c.Reverse(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrAddressNotFound)

	_, err = c.Reverse(ctx, 5, 5)
	assert.ErrorIs(t, err, ErrLookupFailed)
}
