package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/transport/protocol"
	"github.com/HMasataka/chatrelay/pkg/transport/websocket"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func wsURL(t *testing.T, srv *httptest.Server) url.URL {
	t.Helper()
	u, err := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws")
	require.NoError(t, err)
	return *u
}

func runClient(t *testing.T, c *Client) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestClient_ExchangesFrames(t *testing.T) {
	req := require.New(t)
	codec := protocol.NewJSONCodec()
	tokens := make(chan string, 1)
	received := make(chan []byte, 1)

	srv := httptest.NewServer(websocket.NewServer(func(r *http.Request, conn *websocket.Conn) {
		cookie, err := r.Cookie("token")
		if err == nil {
			tokens <- cookie.Value
		}
		conn.Start(func(data []byte) { received <- data }, nil)

		frame, _ := protocol.EncodeFrame(codec, domain.MessageTypePresence, domain.PresencePayload{
			Online: domain.Roster{{UserID: "u1", DisplayName: "alice"}},
		})
		_ = conn.Send(context.Background(), frame)
		<-conn.Done()
	}))
	defer srv.Close()

	options := DefaultClientOptions()
	options.Token = "secret"
	client := NewClient(wsURL(t, srv), options)

	rosters := make(chan domain.Roster, 1)
	client.OnMessage(domain.MessageTypePresence, func(_ context.Context, msg *domain.Message) error {
		var p domain.PresencePayload
		if err := protocol.DecodePayload(msg, &p); err != nil {
			return err
		}
		rosters <- p.Online
		return nil
	})

	cancel, done := runClient(t, client)

	select {
	case roster := <-rosters:
		req.Equal("alice", roster[0].DisplayName)
	case <-time.After(waitFor):
		t.Fatal("no presence frame")
	}
	req.Equal("secret", <-tokens)
	req.True(client.Connected())

	req.NoError(client.SendChat(context.Background(), domain.ChatRequest{Recipient: "u2", Text: "hi"}))
	select {
	case data := <-received:
		msg, err := codec.Decode(data)
		req.NoError(err)
		var chat domain.ChatRequest
		req.NoError(protocol.DecodePayload(msg, &chat))
		req.Equal("hi", chat.Text)
	case <-time.After(waitFor):
		t.Fatal("chat frame not received")
	}

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
	req.False(client.Connected())
}

func TestClient_ReconnectsAfterServerClose(t *testing.T) {
	req := require.New(t)
	var sessions atomic.Int32

	srv := httptest.NewServer(websocket.NewServer(func(_ *http.Request, conn *websocket.Conn) {
		conn.Start(nil, nil)
		if sessions.Add(1) == 1 {
			return
		}
		<-conn.Done()
	}))
	defer srv.Close()

	options := DefaultClientOptions()
	options.ReconnectWait = 10 * time.Millisecond
	var drops atomic.Int32
	options.OnStateChange = func(connected bool) {
		if !connected {
			drops.Add(1)
		}
	}

	client := NewClient(wsURL(t, srv), options)
	runClient(t, client)

	req.Eventually(func() bool {
		return sessions.Load() >= 2 && client.Connected()
	}, waitFor, 5*time.Millisecond)
	req.GreaterOrEqual(drops.Load(), int32(1))
}

func TestClient_GivesUpAfterMaxReconnect(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	u := wsURL(t, srv)
	srv.Close()

	options := DefaultClientOptions()
	options.ReconnectWait = time.Millisecond
	options.MaxReconnect = 2

	_, done := runClient(t, NewClient(u, options))
	select {
	case err := <-done:
		req.Error(err)
	case <-time.After(waitFor):
		t.Fatal("Run did not give up")
	}
}

func TestClient_SendWithoutSession(t *testing.T) {
	client := NewClient(url.URL{Scheme: "ws", Host: "localhost:1"}, DefaultClientOptions())
	require.Error(t, client.SendChat(context.Background(), domain.ChatRequest{Recipient: "u", Text: "x"}))
}
