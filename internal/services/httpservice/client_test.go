package httpservice_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"mediarepo/internal/services"
	"mediarepo/internal/services/httpservice"
)

func TestPostSendsBodyAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sample" || r.URL.Query().Get("fps") != "1" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected request id header")
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	client, err := httpservice.New("sampler", server.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := client.Post(context.Background(), "sample", url.Values{"fps": {"1"}}, "video/mp4", []byte("abc"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if string(resp.Body) != "abc" {
		t.Fatalf("unexpected echo %q", resp.Body)
	}
}

func TestPostClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status    int
		marker    error
		retryable bool
	}{
		{http.StatusServiceUnavailable, services.ErrTransient, true},
		{http.StatusTooManyRequests, services.ErrTransient, true},
		{http.StatusRequestEntityTooLarge, services.ErrSizeLimit, false},
		{http.StatusBadRequest, services.ErrValidation, false},
		{http.StatusUnauthorized, services.ErrConfiguration, false},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		client, _ := httpservice.New("svc", server.URL, time.Second)
		_, err := client.Post(context.Background(), "x", nil, "", nil)
		server.Close()
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
		if services.IsRetryable(err) != tc.retryable {
			t.Fatalf("status %d: retryable mismatch for %v", tc.status, err)
		}
		var statusErr *httpservice.StatusError
		if !errors.As(err, &statusErr) || statusErr.Status != tc.status {
			t.Fatalf("status %d: expected StatusError in chain", tc.status)
		}
	}
}

func TestPostAcceptsListedStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	client, _ := httpservice.New("svc", server.URL, time.Second)
	resp, err := client.Post(context.Background(), "x", nil, "", nil, http.StatusNoContent)
	if err != nil || resp.Status != http.StatusNoContent {
		t.Fatalf("expected accepted 204, got %d, %v", resp.Status, err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := httpservice.New("svc", " ", time.Second); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
