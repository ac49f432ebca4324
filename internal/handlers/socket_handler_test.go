package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anonto42/bazaar/backend/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) dial(t *testing.T, srv *httptest.Server, convID uint, token, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := fmt.Sprintf("ws%s/api/v1/conversations/%d/ws?token=%s%s", strings.TrimPrefix(srv.URL, "http"), convID, token, query)
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, resp, err
}

func readFrame(t *testing.T, ws *websocket.Conn) socketFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame socketFrame
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestSocketStreamsLiveMessages(t *testing.T) {
	s := newTestServer(t)
	conv := s.openConversation(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ws, _, err := s.dial(t, srv, conv.ID, signToken(t, s.owner.ID, ""), "")
	require.NoError(t, err)

	hello := readFrame(t, ws)
	assert.Equal(t, "connected", hello.Type)
	assert.Equal(t, conv.ID, hello.ConversationID)
	require.Eventually(t, func() bool { return s.hub.Subscribers(conv.ID) == 1 }, time.Second, 10*time.Millisecond)

	sent, err := s.conversations.SendMessage(context.Background(), conv.ID, conv.Buyer(), "is anyone there?")
	require.NoError(t, err)

	frame := readFrame(t, ws)
	assert.Equal(t, "message", frame.Type)
	require.NotNil(t, frame.Message)
	assert.Equal(t, sent.ID, frame.Message.ID)
	assert.Equal(t, "is anyone there?", frame.Message.Content)
}

func TestSocketResumesFromCursorWithoutDuplicates(t *testing.T) {
	s := newTestServer(t)
	conv := s.openConversation(t)
	ctx := context.Background()
	first, err := s.conversations.SendMessage(ctx, conv.ID, conv.Buyer(), "first")
	require.NoError(t, err)
	second, err := s.conversations.SendMessage(ctx, conv.ID, conv.Vendor(), "second")
	require.NoError(t, err)

	srv := httptest.NewServer(s.e)
	defer srv.Close()
	ws, _, err := s.dial(t, srv, conv.ID, signToken(t, s.buyer.ID, ""), fmt.Sprintf("&after=%d", first.ID))
	require.NoError(t, err)

	backlog := readFrame(t, ws)
	assert.Equal(t, "message", backlog.Type)
	assert.Equal(t, second.ID, backlog.Message.ID)

	hello := readFrame(t, ws)
	assert.Equal(t, "connected", hello.Type)
	assert.Equal(t, second.ID, hello.HighWater)

	third, err := s.conversations.SendMessage(ctx, conv.ID, conv.Vendor(), "third")
	require.NoError(t, err)
	live := readFrame(t, ws)
	assert.Equal(t, third.ID, live.Message.ID)
}

func TestSocketRejectsOutsiders(t *testing.T) {
	s := newTestServer(t)
	conv := s.openConversation(t)
	outsider := testutil.CreateUser(t, s.db, "eve")
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	_, resp, err := s.dial(t, srv, conv.ID, signToken(t, outsider.ID, ""), "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = s.dial(t, srv, conv.ID, "not-a-jwt", "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSocketUnsubscribesOnDisconnect(t *testing.T) {
	s := newTestServer(t)
	conv := s.openConversation(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ws, _, err := s.dial(t, srv, conv.ID, signToken(t, s.buyer.ID, ""), "")
	require.NoError(t, err)
	readFrame(t, ws)
	require.Eventually(t, func() bool { return s.hub.Subscribers(conv.ID) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return s.hub.Subscribers(conv.ID) == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = s.conversations.SendMessage(context.Background(), conv.ID, conv.Buyer(), "nobody listening")
	assert.NoError(t, err)
}
