package transcribe_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mediarepo/internal/services"
	"mediarepo/internal/services/httpservice"
	"mediarepo/internal/services/transcribe"
	"mediarepo/internal/transcript"
)

func newClient(t *testing.T, handler http.HandlerFunc) *transcribe.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	transport, err := httpservice.New("transcription", server.URL, time.Second)
	if err != nil {
		t.Fatalf("httpservice.New: %v", err)
	}
	return transcribe.New(transport)
}

func TestTranscribeJSONSegments(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" || r.URL.Query().Get("language") != "en" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"segments":[{"start":0,"end":1.5,"text":"hi"}]}`))
	})
	raw, err := client.Transcribe(context.Background(), services.Media{Data: []byte("a")}, "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(raw.Segments) != 1 || raw.Language != "en" {
		t.Fatalf("unexpected raw %+v", raw)
	}
}

func TestTranscribeBareSRT(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1\n00:00:00,000 --> 00:00:01,000\nhello\n"))
	})
	raw, err := client.Transcribe(context.Background(), services.Media{}, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	tr, err := transcript.Normalize(raw)
	if err != nil || tr.Text != "hello" {
		t.Fatalf("Normalize = %+v, %v", tr, err)
	}
}

func TestAlign(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil || req["audio"] == "" {
			t.Errorf("unexpected align body %s", body)
		}
		_, _ = w.Write([]byte(`{"words":[{"word":"hi","start":0.1,"end":0.4}]}`))
	})
	words, err := client.Align(context.Background(), services.Media{Data: []byte("a")}, transcript.Transcript{})
	if err != nil || len(words) != 1 || words[0].Word != "hi" {
		t.Fatalf("Align = %+v, %v", words, err)
	}
}
