package solanatracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFetchMarketDataParsesBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/price/multi", r.URL.Path)
		require.Equal(t, "Addr1,Addr2", r.URL.Query().Get("tokens"))
		require.Equal(t, "secret", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"Addr1":{"price":0.1,"marketCap":50000},"Addr2":{"price":0.2,"marketCap":null}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", srv.Client(), zerolog.Nop())
	snap, err := c.FetchMarketData(context.Background(), []string{"Addr1", "Addr2"})
	require.NoError(t, err)

	mc, ok := snap.MarketCap("Addr1")
	require.True(t, ok)
	require.Equal(t, 50000.0, mc)
	_, ok = snap.MarketCap("Addr2")
	require.False(t, ok)
	_, ok = snap.MarketCap("Addr3")
	require.False(t, ok)
}

func TestFetchMarketDataNon200IsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), zerolog.Nop())
	snap, err := c.FetchMarketData(context.Background(), []string{"Addr1"})
	require.NoError(t, err)
	require.Empty(t, snap)
}

func TestFetchMarketDataNoAddressesSkipsRequest(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", nil, zerolog.Nop())
	snap, err := c.FetchMarketData(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, snap)
}
