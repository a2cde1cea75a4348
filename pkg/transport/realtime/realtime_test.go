package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/taylorparsons/interview-practice-app-sub000/pkg/transport/realtime"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a test WebSocket server. The handler receives the
// accepted conn; the server is closed when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDial_SendsBearerAuth(t *testing.T) {
	t.Parallel()

	gotAuth := make(chan string, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		<-r.Context().Done()
	})

	c := realtime.New("my-key", realtime.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := c.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer stream.Close()

	select {
	case auth := <-gotAuth:
		if auth != "Bearer my-key" {
			t.Errorf("Authorization = %q, want bearer token", auth)
		}
	case <-ctx.Done():
		t.Fatal("server never saw the handshake")
	}
}

func TestStream_DeliversEventsInOrder(t *testing.T) {
	t.Parallel()

	payloads := []string{
		`{"type":"response.output_text.delta","delta":"Tell me"}`,
		`{"type":"response.output_text.delta","delta":" more."}`,
		`{"type":"response.output_text.done"}`,
	}

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		ctx := r.Context()
		for _, p := range payloads {
			if err := conn.Write(ctx, websocket.MessageText, []byte(p)); err != nil {
				return
			}
		}
		<-ctx.Done()
	})

	c := realtime.New("", realtime.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := c.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer stream.Close()

	for i, want := range payloads {
		select {
		case evt := <-stream.Events():
			if string(evt.Data) != want {
				t.Errorf("event %d = %s, want %s", i, evt.Data, want)
			}
			if evt.ReceivedAt.IsZero() {
				t.Errorf("event %d has no receive timestamp", i)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestStream_SendReachesServer(t *testing.T) {
	t.Parallel()

	received := make(chan []byte, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		received <- data
	})

	c := realtime.New("", realtime.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := c.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer stream.Close()

	payload := []byte(`{"type":"session.update"}`)
	if err := stream.Send(ctx, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Errorf("server received %s, want %s", got, payload)
		}
	case <-ctx.Done():
		t.Fatal("server never received the payload")
	}
}

func TestStream_CloseEndsEventChannel(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		<-r.Context().Done()
	})

	c := realtime.New("", realtime.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := c.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	// The server above never participates in a close handshake, so Close
	// must not wait on the peer.
	start := time.Now()
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close took %v against an unresponsive peer", elapsed)
	}
	// Close is idempotent.
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-stream.Events():
		if ok {
			t.Error("expected closed events channel, got an event")
		}
	case <-ctx.Done():
		t.Fatal("events channel never closed")
	}

	if err := stream.Err(); err != nil {
		t.Errorf("Err after local close = %v, want nil", err)
	}
}

func TestStream_RemoteDropRecordsError(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.Close(websocket.StatusInternalError, "backend restart")
	})

	c := realtime.New("", realtime.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stream, err := c.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer stream.Close()

	select {
	case _, ok := <-stream.Events():
		if ok {
			t.Fatal("expected closed events channel")
		}
	case <-ctx.Done():
		t.Fatal("events channel never closed")
	}

	if stream.Err() == nil {
		t.Error("Err after remote drop = nil, want the transport error")
	}
}
