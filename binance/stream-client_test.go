package binance

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamServer is a local stand-in for the /stream endpoint: it acks
// SUBSCRIBE requests and then pushes the configured frames for the
// subscribed topic.
func streamServer(t *testing.T, frames map[string][]string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			var req streamRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Method != "SUBSCRIBE" {
				continue
			}

			ack, _ := json.Marshal(map[string]interface{}{"result": nil, "id": req.ReqID})
			if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
				return
			}

			for _, topic := range req.Params {
				for _, frame := range frames[topic] {
					if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
						return
					}
				}
			}
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestStreamClient_SubscribeReceivesTopicFrames(t *testing.T) {
	frame := `{"stream": "btcusdt@depth", "data": {"u": 160, "U": 157, "b": [], "a": []}}`
	server := streamServer(t, map[string][]string{"btcusdt@depth": {frame}})

	client := NewStreamClient(WithStreamEndpoint(wsURL(server)))
	require.NoError(t, client.Connect())
	defer client.Close()

	subscription, err := client.Subscribe("btcusdt@depth")
	require.NoError(t, err)
	assert.Equal(t, "btcusdt@depth", subscription.Topic)

	select {
	case msg := <-subscription.Stream:
		assert.JSONEq(t, frame, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("expected the pushed frame to reach the subscription channel")
	}
}

func TestStreamClient_SubscribeRequiresConnection(t *testing.T) {
	client := NewStreamClient()

	_, err := client.Subscribe("btcusdt@depth")
	assert.Error(t, err)
}

func TestStreamClient_CloseEndsSubscriptions(t *testing.T) {
	server := streamServer(t, nil)

	client := NewStreamClient(WithStreamEndpoint(wsURL(server)))
	require.NoError(t, client.Connect())

	subscription, err := client.Subscribe("ethusdt@depth")
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "close must be idempotent")

	select {
	case _, ok := <-subscription.Stream:
		assert.False(t, ok, "subscription channel must be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("expected the subscription channel to close")
	}
}

func TestStreamAPI_DepthDiffStreamDecodesFrames(t *testing.T) {
	frame := `{
		"stream": "btcusdt@depth",
		"data": {"e": "depthUpdate", "E": 1, "s": "BTCUSDT",
		         "U": 157, "u": 160, "b": [["0.0024", "10"]], "a": []}
	}`
	undecodable := `{"stream": "btcusdt@depth", "data": {"u": "not a number"}}`
	server := streamServer(t, map[string][]string{
		"btcusdt@depth": {undecodable, frame},
	})

	client := NewStreamClient(WithStreamEndpoint(wsURL(server)))
	require.NoError(t, client.Connect())
	defer client.Close()

	api := NewStreamAPI(client, nil)
	subscription, err := api.DepthDiffStream(testSymbol(t))
	require.NoError(t, err)

	// the undecodable frame is skipped, the valid one decoded
	select {
	case update := <-subscription.Stream:
		assert.Equal(t, int64(160), update.FinalUpdateId)
		assert.Equal(t, [][]string{{"0.0024", "10"}}, update.Bids)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a decoded depth update")
	}
}
