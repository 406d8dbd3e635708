package signal

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/ReviewHub/internal/app"
	"github.com/dkeye/ReviewHub/internal/app/orch"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    core.NewRoomManager(),
		Policy:   app.DropPolicy{},
	}
	ctl := NewSignalWSController(o, opts)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(context.Background(), c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return m
}

func expectType(t *testing.T, m map[string]any, typ string) {
	t.Helper()
	if m["type"] != typ {
		t.Fatalf("frame = %v, want type %s", m, typ)
	}
}

func TestSessionRelayEndToEnd(t *testing.T) {
	srv, o := newTestServer(t, Options{})
	a := dial(t, srv)
	b := dial(t, srv)

	send(t, a, `{"type":"join-room","projectId":"proj-1"}`)
	expectType(t, read(t, a), protocol.TypeRoomState)

	send(t, b, `{"type":"join-room","projectId":"proj-1"}`)
	state := read(t, b)
	expectType(t, state, protocol.TypeRoomState)
	members := state["members"].([]any)
	if len(members) != 1 {
		t.Fatalf("members = %v, want the first joiner", members)
	}
	aID := members[0].(string)

	joined := read(t, a)
	expectType(t, joined, protocol.TypeUserJoined)
	bID := joined["userId"].(string)
	if bID == aID {
		t.Fatal("both connections got the same id")
	}

	send(t, a, `{"type":"camera-update","projectId":"proj-1","position":[1,2,3],"rotation":[0,0,0,1]}`)
	cam := read(t, b)
	expectType(t, cam, protocol.TypeCameraUpdated)
	if cam["userId"] != aID {
		t.Errorf("camera-updated userId = %v, want %s", cam["userId"], aID)
	}

	send(t, b, `{"type":"annotation-add","projectId":"proj-1","annotation":{"text":"look here"}}`)
	ann := read(t, a)
	expectType(t, ann, protocol.TypeAnnotationAdded)
	if ann["annotation"].(map[string]any)["text"] != "look here" {
		t.Errorf("annotation = %v", ann["annotation"])
	}

	if err := b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("close: %v", err)
	}
	left := read(t, a)
	expectType(t, left, protocol.TypeUserLeft)
	if left["userId"] != bID {
		t.Errorf("user-left userId = %v, want %s", left["userId"], bID)
	}

	room, ok := o.Rooms.Get("proj-1")
	if !ok || room.MemberCount() != 1 {
		t.Errorf("room after disconnect = %v, %v", room, ok)
	}
}

func TestBadFramesOnlyReachSender(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	a := dial(t, srv)
	b := dial(t, srv)
	send(t, a, `{"type":"join-room","projectId":"p"}`)
	read(t, a)
	send(t, b, `{"type":"join-room","projectId":"p"}`)
	read(t, b)
	read(t, a)

	for _, frame := range []string{
		`not json`,
		`{"type":"teleport"}`,
		`{"type":"camera-update","projectId":"p","position":[1,2],"rotation":[0,0,0]}`,
		`{"type":"join-room","projectId":"` + strings.Repeat("x", 200) + `"}`,
	} {
		send(t, a, frame)
		m := read(t, a)
		expectType(t, m, protocol.TypeError)
		if m["code"] != protocol.CodeBadPayload {
			t.Errorf("%s: code = %v", frame, m["code"])
		}
	}

	send(t, b, `{"type":"ping"}`)
	expectType(t, read(t, b), protocol.TypePong)
}

func TestRejectsDisallowedOrigin(t *testing.T) {
	srv, _ := newTestServer(t, Options{AllowedOrigins: []string{"https://review.example"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	h := http.Header{}
	h.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, h)
	if err == nil {
		t.Fatal("dial from disallowed origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %v, want 403", resp)
	}

	h.Set("Origin", "https://review.example")
	c, _, err := websocket.DefaultDialer.Dial(url, h)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	c.Close()
}

func TestToProtocolError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{protocol.BadPayload("x"), protocol.CodeBadPayload},
		{app.ErrNotJoined, protocol.CodeNotJoined},
		{app.ErrUnknownConn, protocol.CodeInternal},
	}
	for _, tt := range tests {
		if got := toProtocolError(tt.err).Code; got != tt.code {
			t.Errorf("toProtocolError(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}
}

// stalledPeer completes the websocket handshake over an in-memory pipe and
// then never reads, so any write from the client side blocks.
func stalledPeer(t *testing.T) *websocket.Conn {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })
	go func() {
		req, err := http.ReadRequest(bufio.NewReader(server))
		if err != nil {
			return
		}
		h := sha1.New()
		h.Write([]byte(req.Header.Get("Sec-WebSocket-Key") + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))
		accept := base64.StdEncoding.EncodeToString(h.Sum(nil))
		_, _ = server.Write([]byte("HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\nConnection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"))
	}()
	d := websocket.Dialer{
		NetDialContext:   func(context.Context, string, string) (net.Conn, error) { return client, nil },
		HandshakeTimeout: 2 * time.Second,
	}
	ws, _, err := d.Dial("ws://pipe/ws", nil)
	if err != nil {
		t.Fatalf("dial over pipe: %v", err)
	}
	return ws
}

func TestCloseDoesNotBlockSenders(t *testing.T) {
	c := newWsSignalConn(stalledPeer(t), 1)

	closeDone := make(chan struct{})
	go func() {
		c.Close()
		close(closeDone)
	}()
	// Wait until Close has marked the connection before racing a sender.
	deadline := time.Now().Add(time.Second)
	for {
		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	err := c.TrySend(core.Frame(`{"type":"pong"}`))
	if !errors.Is(err, core.ErrConnClosed) {
		t.Errorf("TrySend() error = %v, want ErrConnClosed", err)
	}
	if waited := time.Since(start); waited > 200*time.Millisecond {
		t.Errorf("TrySend waited %v behind Close", waited)
	}
	select {
	case <-closeDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return")
	}
}
