package provider_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricewatch/internal/provider"
	"pricewatch/internal/provider/mock"
)

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestGetJSON(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock HTTP client
	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)

	// Assert: the request carries query, headers and a deadline
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "AAPL", req.URL.Query().Get("symbol"))
			require.Equal(t, "keep", req.URL.Query().Get("existing"))
			require.Equal(t, "secret", req.Header.Get("X-Key"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			_, ok := req.Context().Deadline()
			require.True(t, ok, "expected a deadline on the request context")
			return response(http.StatusOK, `{"c": 1.5}`), nil
		}).
		Times(1)

	// Act
	var out struct {
		C float64 `json:"c"`
	}
	err := provider.GetJSON(t.Context(), httpClient, provider.Request{
		Provider: "test",
		URL:      "https://example.com/quote?existing=keep",
		Query:    map[string][]string{"symbol": {"AAPL"}},
		Header:   http.Header{"X-Key": []string{"secret"}},
		Timeout:  time.Second,
	}, &out)

	// Assert
	require.NoError(t, err)
	require.InEpsilon(t, 1.5, out.C, 0.0001)
}

func TestGetJSON_StatusError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusForbidden, `{"error":"You don't have access to this resource."}`), nil).
		Times(1)

	var out map[string]any
	err := provider.GetJSON(t.Context(), httpClient, provider.Request{Provider: "test", URL: "https://example.com"}, &out)

	require.Error(t, err)
	require.True(t, provider.IsAccessDenied(err))
	require.True(t, provider.IsTransient(err))
	require.False(t, provider.IsNotConfigured(err))

	var se *provider.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusForbidden, se.Code)
}

func TestGetJSON_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(nil, errors.New("connection refused")).
		Times(1)

	var out map[string]any
	err := provider.GetJSON(t.Context(), httpClient, provider.Request{Provider: "test", URL: "https://example.com"}, &out)

	require.ErrorIs(t, err, provider.ErrTransient)
	require.False(t, provider.IsAccessDenied(err))
}

func TestGetJSON_Malformed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(response(http.StatusOK, `<html>maintenance</html>`), nil).
		Times(1)

	var out map[string]any
	err := provider.GetJSON(t.Context(), httpClient, provider.Request{Provider: "test", URL: "https://example.com"}, &out)

	require.ErrorIs(t, err, provider.ErrMalformed)
	require.True(t, provider.IsTransient(err))
}

func TestGetJSON_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	var out map[string]any
	err := provider.GetJSON(t.Context(), httpClient, provider.Request{Provider: "test", URL: string([]rune{0x7f})}, &out)
	require.Error(t, err)
}

func TestGetJSON_Timeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock.NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		}).
		Times(1)

	var out map[string]any
	err := provider.GetJSON(context.Background(), httpClient, provider.Request{
		Provider: "test",
		URL:      "https://example.com",
		Timeout:  10 * time.Millisecond,
	}, &out)
	require.ErrorIs(t, err, provider.ErrTransient)
}

func TestParseAssetClass(t *testing.T) {
	t.Parallel()

	c, err := provider.ParseAssetClass(" crypto ")
	require.NoError(t, err)
	require.Equal(t, provider.Crypto, c)

	c, err = provider.ParseAssetClass("Stock")
	require.NoError(t, err)
	require.Equal(t, provider.Stock, c)

	_, err = provider.ParseAssetClass("bond")
	require.Error(t, err)
}
