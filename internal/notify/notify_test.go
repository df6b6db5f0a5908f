package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

type captureSender struct {
	name   string
	fail   bool
	titles []string
	bodies []string
}

func (c *captureSender) Send(_ context.Context, title, message string) error {
	if c.fail {
		return errors.New("unreachable")
	}
	c.titles = append(c.titles, title)
	c.bodies = append(c.bodies, message)
	return nil
}

func (c *captureSender) Name() string { return c.name }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &captureSender{name: "c"}
	n := NewNotifier([]Sender{s}, []string{" highlight ", ""}, quiet())

	if err := n.Notify(context.Background(), EventRunFailed, "t", "m"); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(context.Background(), EventHighlight, "t", "m"); err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 1 {
		t.Fatalf("sent %d, want 1", len(s.titles))
	}
}

func TestNotifierOneSenderFailureDoesNotStopOthers(t *testing.T) {
	bad := &captureSender{name: "bad", fail: true}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quiet())

	err := n.Notify(context.Background(), EventHighlight, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("err=%v", err)
	}
	if len(good.titles) != 1 {
		t.Fatal("good sender skipped")
	}
}

func TestHighlightSinkOnlyAlertsOnEvents(t *testing.T) {
	s := &captureSender{name: "c"}
	sink := NewHighlightSink(NewNotifier([]Sender{s}, nil, quiet()))

	err := sink.PublishScores(context.Background(), []domain.DayScore{
		{Time: "2025-01-01", Value: 3},
		{Time: "2025-01-02", Value: 12.5, Events: []domain.HighlightEvent{
			{Title: "Rate cut?", Value: -25.5},
			{Title: "Election?", Value: 14},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.titles) != 1 || s.titles[0] != "Volatility 2025-01-02: 12.50" {
		t.Fatalf("titles=%v", s.titles)
	}
	if s.bodies[0] != "Rate cut? (-25.50%)\nElection? (+14.00%)" {
		t.Fatalf("body=%q", s.bodies[0])
	}
}

func TestDiscordSenderPostsContent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "T", "body"); err != nil {
		t.Fatal(err)
	}
	if got["content"] != "**T**\nbody" {
		t.Fatalf("content=%q", got["content"])
	}
}

func TestTelegramSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path=%s", r.URL.Path)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "T", "m")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err=%v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 10); got != "héllo" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("héllo", 3); got != "hé…" {
		t.Fatalf("got %q", got)
	}
}
