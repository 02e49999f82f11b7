package binance

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spooky-finn/go-binance-client/domain"
)

const (
	defaultStreamEndpoint = "wss://stream.binance.com:9443/stream"

	// Time allowed to read the next message; the server pings roughly
	// every 3 minutes and the default handler answers with pongs.
	readWait = 10 * time.Minute

	handshakeTimeout = 5 * time.Second

	// Per-topic fan-out buffer. A consumer this far behind is being torn
	// down; frames for it are dropped rather than stalling the reader.
	topicBufferSize = 256
)

type subscriptionEntry struct {
	ch              chan []byte
	subscriberCount int
}

type streamRequest struct {
	ReqID  int      `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// StreamClient multiplexes many stream topics over one websocket
// connection to the /stream endpoint. Messages are fanned out to
// per-topic channels by the envelope's stream name.
type StreamClient struct {
	endpoint      string
	conn          *websocket.Conn
	subscriptions map[string]*subscriptionEntry
	mu            sync.Mutex
	done          chan struct{}
	closeOnce     sync.Once
}

type StreamClientOption func(*StreamClient)

// WithStreamEndpoint overrides the websocket URL, e.g. for a test
// server.
func WithStreamEndpoint(endpoint string) StreamClientOption {
	return func(c *StreamClient) { c.endpoint = endpoint }
}

func NewStreamClient(opts ...StreamClientOption) *StreamClient {
	c := &StreamClient{
		endpoint:      defaultStreamEndpoint,
		subscriptions: make(map[string]*subscriptionEntry),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect dials the stream endpoint and starts the reader loop.
func (c *StreamClient) Connect() error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.Dial(c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("binance: failed to dial stream endpoint: %w", err)
	}

	c.conn = conn
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPingHandler(nil) // default handler answers with a pong

	go c.read()
	return nil
}

// Subscribe registers interest in one topic, e.g. "btcusdt@depth". The
// SUBSCRIBE frame is only sent for the first subscriber; later ones
// share the same channel.
func (c *StreamClient) Subscribe(topic string) (*domain.Subscription[[]byte], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("binance: stream connection is not established")
	}

	entry, ok := c.subscriptions[topic]
	if ok {
		entry.subscriberCount++
	} else {
		entry = &subscriptionEntry{
			ch:              make(chan []byte, topicBufferSize),
			subscriberCount: 1,
		}
		c.subscriptions[topic] = entry

		logger.Debugf("subscribing to stream topic %s", topic)
		err := c.conn.WriteJSON(streamRequest{
			Method: "SUBSCRIBE",
			ReqID:  randomReqID(),
			Params: []string{topic},
		})
		if err != nil {
			delete(c.subscriptions, topic)
			return nil, fmt.Errorf("binance: failed to send subscribe request for topic %s: %w", topic, err)
		}
	}

	return &domain.Subscription[[]byte]{
		Stream:      entry.ch,
		Topic:       topic,
		Unsubscribe: func() { c.unsubscribe(topic) },
	}, nil
}

func (c *StreamClient) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return
	}

	if entry.subscriberCount > 1 {
		entry.subscriberCount--
		return
	}

	close(entry.ch)
	delete(c.subscriptions, topic)

	err := c.conn.WriteJSON(streamRequest{
		Method: "UNSUBSCRIBE",
		ReqID:  randomReqID(),
		Params: []string{topic},
	})
	if err != nil {
		logger.WithError(err).Warnf("failed to send unsubscribe request for topic %s", topic)
	}
}

// Close terminates the connection. Every open subscription channel is
// closed so reader tasks observe stream termination.
func (c *StreamClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		for topic, entry := range c.subscriptions {
			close(entry.ch)
			delete(c.subscriptions, topic)
		}
		c.mu.Unlock()

		if c.conn != nil {
			err = c.conn.Close()
		}
	})

	return err
}

// read is the single reader of the connection. Frames with an id are
// subscription acks; frames with a stream name are fanned out to the
// topic channel. A malformed frame is logged and skipped.
func (c *StreamClient) read() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				logger.WithError(err).Error("stream connection read failed")
				_ = c.Close()
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))

		var envelope struct {
			ID     *int   `json:"id"`
			Stream string `json:"stream"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			logger.WithError(err).Warnf("skipping malformed stream frame: %s", msg)
			continue
		}

		if envelope.ID != nil {
			logger.Debugf("received ack for request %d", *envelope.ID)
			continue
		}

		if envelope.Stream == "" {
			continue
		}

		// Channels are closed under the same lock, so sending here
		// cannot race a close.
		c.mu.Lock()
		if entry, ok := c.subscriptions[envelope.Stream]; ok {
			select {
			case entry.ch <- msg:
			default:
				logger.Warnf("dropping frame for slow consumer on %s", envelope.Stream)
			}
		}
		c.mu.Unlock()
	}
}

func randomReqID() int {
	min, max := 10000, 9999999
	return min + rand.Intn(max-min)
}
