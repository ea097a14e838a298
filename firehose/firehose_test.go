package firehose

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const postWithTags = `{
	"did": "did:plc:abc",
	"time_us": 1725911162329308,
	"kind": "commit",
	"commit": {
		"rev": "3l3qo2vutsw2b",
		"operation": "create",
		"collection": "app.bsky.feed.post",
		"rkey": "3l3qo2vuowo2b",
		"record": {
			"$type": "app.bsky.feed.post",
			"createdAt": "2024-09-09T19:46:02.102Z",
			"text": "sunset over the bay #photography #nature",
			"facets": [
				{"index": {"byteStart": 20, "byteEnd": 32}, "features": [{"$type": "app.bsky.richtext.facet#tag", "tag": "photography"}]},
				{"index": {"byteStart": 0, "byteEnd": 6}, "features": [{"$type": "app.bsky.richtext.facet#link", "uri": "https://example.org"}]},
				{"index": {"byteStart": 33, "byteEnd": 40}, "features": [{"$type": "app.bsky.richtext.facet#tag", "tag": "nature"}]}
			],
			"tags": ["nature", "#sky"]
		},
		"cid": "bafyrei"
	}
}`

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent([]byte(postWithTags))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if event.Kind != "commit" {
		t.Errorf("Kind = %q, want commit", event.Kind)
	}

	want := []string{"photography", "nature", "sky"}
	if len(event.Tags) != len(want) {
		t.Fatalf("Tags = %v, want %v", event.Tags, want)
	}
	for i := range want {
		if event.Tags[i] != want[i] {
			t.Errorf("Tags[%d] = %q, want %q", i, event.Tags[i], want[i])
		}
	}
}

func TestParseEventWithoutTags(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"identity event", `{"did":"did:plc:abc","kind":"identity","identity":{}}`},
		{"delete", `{"kind":"commit","commit":{"operation":"delete","collection":"app.bsky.feed.post"}}`},
		{"plain post", `{"kind":"commit","commit":{"operation":"create","record":{"text":"hello"}}}`},
		{"empty tag", `{"kind":"commit","commit":{"operation":"create","record":{"tags":["", "  "]}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseEvent([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseEvent failed: %v", err)
			}
			if len(event.Tags) != 0 {
				t.Errorf("Tags = %v, want none", event.Tags)
			}
		})
	}
}

func TestParseEventInvalidJSON(t *testing.T) {
	if _, err := ParseEvent([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func newStreamServer(t *testing.T, messages []string, hold bool) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q, want %q", ua, "test-agent")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if hold {
			// Keep the connection open until the client goes away.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSubscribeReadsEvents(t *testing.T) {
	server := newStreamServer(t, []string{
		`{"kind":"account"}`,
		"garbage",
		postWithTags,
	}, true)
	defer server.Close()

	client := NewClient(WithURL(wsURL(server)), WithUserAgent("test-agent"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	first, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first.Kind != "account" || len(first.Tags) != 0 {
		t.Errorf("first event = %+v, want account event without tags", first)
	}

	// The malformed message is skipped.
	second, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(second.Tags) != 3 {
		t.Errorf("second event tags = %v, want 3 tags", second.Tags)
	}
}

func TestNextAfterServerCloses(t *testing.T) {
	server := newStreamServer(t, nil, false)
	defer server.Close()

	client := NewClient(WithURL(wsURL(server)), WithUserAgent("test-agent"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	if _, err := sub.Next(ctx); err == nil {
		t.Fatal("expected error after server closed the stream")
	}
}

func TestNextHonoursContextDeadline(t *testing.T) {
	server := newStreamServer(t, nil, true)
	defer server.Close()

	client := NewClient(WithURL(wsURL(server)), WithUserAgent("test-agent"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sub, err := client.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	_, err = sub.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server := newStreamServer(t, nil, true)
	defer server.Close()

	client := NewClient(WithURL(wsURL(server)), WithUserAgent("test-agent"))
	sub, err := client.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub.Close()
	sub.Close()

	if _, err := sub.Next(context.Background()); err == nil {
		t.Fatal("expected error reading from closed subscription")
	}
}

func TestSubscribeDialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(WithURL(wsURL(server)))
	if _, err := client.Subscribe(context.Background()); err == nil {
		t.Fatal("expected error for rejected handshake")
	}
}
