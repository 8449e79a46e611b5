package coingecko_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricewatch/internal/provider"
	"pricewatch/internal/provider/coingecko"
	"pricewatch/internal/provider/mock"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestCoinsList(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v3/coins/list", req.URL.Path)
			return response(http.StatusOK, `[{"id":"bitcoin","symbol":"btc","name":"Bitcoin"},{"id":"ethereum","symbol":"eth","name":"Ethereum"}]`), nil
		}).
		Times(1)

	client := coingecko.New(coingecko.WithHTTPClient(httpClient))
	coins, err := client.CoinsList(t.Context())
	require.NoError(t, err)
	require.Equal(t, []coingecko.Coin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
	}, coins)
}

func TestMarketChart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v3/coins/bitcoin/market_chart", req.URL.Path)
			require.Equal(t, "eur", req.URL.Query().Get("vs_currency"))
			require.Equal(t, "1", req.URL.Query().Get("days"))
			return response(http.StatusOK, `{"prices":[[1700000000000,100.5],[1700000300000,null],[1700000600000,101.25]]}`), nil
		}).
		Times(1)

	client := coingecko.New(coingecko.WithHTTPClient(httpClient))
	points, err := client.MarketChart(t.Context(), "bitcoin", "EUR", 1)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.InEpsilon(t, 100.5, points[0].Price, 0.0001)
	require.InEpsilon(t, 101.25, points[1].Price, 0.0001)
	require.Equal(t, int64(1700000000000), points[0].At.UnixMilli())
}

func TestMarketChart_NotFound(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusNotFound, `{"error":"coin not found"}`), nil).
		Times(1)

	client := coingecko.New(coingecko.WithHTTPClient(httpClient))
	points, err := client.MarketChart(t.Context(), "nope", "usd", 1)
	require.True(t, provider.IsTransient(err))
	require.False(t, provider.IsAccessDenied(err))
	require.Nil(t, points)
}

func TestSearch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v3/search", req.URL.Path)
			require.Equal(t, "pepe", req.URL.Query().Get("query"))
			return response(http.StatusOK, `{"coins":[{"id":"pepe","symbol":"PEPE","name":"Pepe"},{"id":"pepe-2","symbol":"PEPE2","name":"Pepe 2.0"}],"exchanges":[]}`), nil
		}).
		Times(1)

	client := coingecko.New(coingecko.WithHTTPClient(httpClient))
	coins, err := client.Search(t.Context(), "pepe")
	require.NoError(t, err)
	require.Len(t, coins, 2)
	require.Equal(t, "pepe", coins[0].ID)
}

func TestSearch_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(nil, errors.New("connection reset")).
		Times(1)

	client := coingecko.New(coingecko.WithHTTPClient(httpClient))
	_, err := client.Search(t.Context(), "btc")
	require.ErrorIs(t, err, provider.ErrTransient)
}
