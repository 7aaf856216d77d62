package mqtt

import (
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken implements pahomqtt.Token. It completes when finish is called.
type fakeToken struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func doneToken(err error) *fakeToken {
	t := newToken()
	t.finish(err)
	return t
}

func (t *fakeToken) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeConnectToken struct {
	*fakeToken
	returnCode     byte
	sessionPresent bool
}

func (t *fakeConnectToken) ReturnCode() byte     { return t.returnCode }
func (t *fakeConnectToken) SessionPresent() bool { return t.sessionPresent }

type fakeSubscribeToken struct {
	*fakeToken
	granted map[string]byte
}

func (t *fakeSubscribeToken) Result() map[string]byte { return t.granted }

// fakeClient implements pahoClient.
type fakeClient struct {
	mu sync.Mutex

	opts         *pahomqtt.ClientOptions
	connectToken pahomqtt.Token
	granted      map[string]byte
	subscribeErr error
	holdPublish  bool
	publishErr   error

	pending     []*fakeToken
	published   []string
	subscribed  map[string]byte
	unsubbed    []string
	handler     pahomqtt.MessageHandler
	disconnects int
}

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectToken == nil {
		return &fakeConnectToken{fakeToken: doneToken(nil)}
	}
	return c.connectToken
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, _ interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, topic)
	if c.holdPublish {
		tok := newToken()
		c.pending = append(c.pending, tok)
		return tok
	}
	return doneToken(c.publishErr)
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = filters
	c.handler = callback
	return &fakeSubscribeToken{fakeToken: doneToken(c.subscribeErr), granted: c.granted}
}

func (c *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubbed = append(c.unsubbed, topics...)
	return doneToken(nil)
}

func (c *fakeClient) options() *pahomqtt.ClientOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

func (c *fakeClient) messageHandler() pahomqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *fakeClient) pendingPublish(i int) *fakeToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[i]
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
	qos     byte

	mu    sync.Mutex
	acked int
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return m.qos }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }

func (m *fakeMessage) Ack() {
	m.mu.Lock()
	m.acked++
	m.mu.Unlock()
}

func (m *fakeMessage) ackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

// recorder collects session callbacks.
type recorder struct {
	mu    sync.Mutex
	items []Item
	lost  []error
}

func (r *recorder) emit(item Item) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
}

func (r *recorder) onLost(err error) {
	r.mu.Lock()
	r.lost = append(r.lost, err)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func (r *recorder) lostCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lost)
}

// waitItem waits until at least n items were emitted and returns item n-1.
func (r *recorder) waitItem(t *testing.T, n int) Item {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.items) >= n {
			item := r.items[n-1]
			r.mu.Unlock()
			return item
		}
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for item %d (have %d)", n, r.count())
	return Item{}
}

func newTestSession(cfg SessionConfig, fc *fakeClient) (*Session, *recorder) {
	rec := &recorder{}
	s := NewSession(cfg, rec.emit, rec.onLost)
	s.newClient = func(opts *pahomqtt.ClientOptions) pahoClient {
		fc.mu.Lock()
		fc.opts = opts
		fc.mu.Unlock()
		return fc
	}
	return s, rec
}
