package websocketPkg

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// frameServer answers every binary message with a reply echoing its size in
// total_frames, and rejects empty messages with an error reply.
func frameServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := FrameReply{SessionID: "s-1", Frame: "abc"}
			if len(msg) == 0 {
				reply = FrameReply{Error: "invalid frame"}
			}
			reply.Metrics.TotalFrames = len(msg)
			data, _ := jsoniter.Marshal(reply)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSendFrame(t *testing.T) {
	srv := frameServer(t)
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), quietLogger(), DefaultOptions())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	for i, frame := range [][]byte{[]byte("one"), []byte("three"), {}} {
		reply, err := client.SendFrame(context.Background(), frame)
		if err != nil {
			t.Fatalf("frame %d: SendFrame() error = %v", i, err)
		}
		if reply.Metrics.TotalFrames != len(frame) {
			t.Errorf("frame %d: Expected total_frames=%d, got %d", i, len(frame), reply.Metrics.TotalFrames)
		}
		if len(frame) == 0 && reply.Error == "" {
			t.Errorf("frame %d: Expected an error reply", i)
		}
		if len(frame) > 0 && reply.SessionID != "s-1" {
			t.Errorf("frame %d: Expected session_id s-1, got %q", i, reply.SessionID)
		}
	}
}

func TestSendFrameAfterClose(t *testing.T) {
	srv := frameServer(t)
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), quietLogger(), Options{
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Errorf("Expected client to report disconnected")
	}
	if _, err := client.SendFrame(context.Background(), []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := Dial(context.Background(), wsURL(srv), quietLogger(), DefaultOptions()); err == nil {
		t.Errorf("Expected dial error against a non-websocket endpoint")
	}
}
