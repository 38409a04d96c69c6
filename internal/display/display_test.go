package display

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"wastesort/internal/logger"
	"wastesort/internal/vision"
)

type spySink struct {
	name  string
	calls *[]string
}

func (s spySink) Present(frame *vision.Frame) {
	*s.calls = append(*s.calls, s.name+":frame")
}

func (s spySink) PresentAdvisory(text string) {
	*s.calls = append(*s.calls, s.name+":"+text)
}

func TestMulti_FansOutInOrder(t *testing.T) {
	var calls []string
	m := Multi{spySink{"a", &calls}, spySink{"b", &calls}}

	frame, _ := vision.NewFrame(1, 1, vision.BGR, make([]byte, 3))
	m.Present(frame)
	m.PresentAdvisory("pen — dispose as: Other")

	want := []string{"a:frame", "b:frame", "a:pen — dispose as: Other", "b:pen — dispose as: Other"}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, expected %v", calls, want)
	}
}

func startHub(t *testing.T) (*HubService, string) {
	t.Helper()
	hub := NewHubService(logger.NewDiscard())
	hub.encode = func(f *vision.Frame) ([]byte, error) { return []byte("jpeg"), nil }

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Invalid message %s: %v", data, err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *HubService, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, have %d", n, hub.GetClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsFramesAndAdvisories(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	frame, _ := vision.NewFrame(1, 1, vision.BGR, make([]byte, 3))
	frame.Seq = 7
	hub.Present(frame)

	msg := readMessage(t, conn)
	if msg.Type != "frame" || msg.Image != "anBlZw==" || msg.Seq != 7 {
		t.Errorf("Unexpected frame message %+v", msg)
	}

	hub.PresentAdvisory("battery — dispose as: Hazardous")
	msg = readMessage(t, conn)
	if msg.Type != "advisory" || msg.Text != "battery — dispose as: Hazardous" {
		t.Errorf("Unexpected advisory message %+v", msg)
	}
}

func TestHub_ReplaysLastAdvisoryToNewViewers(t *testing.T) {
	hub, url := startHub(t)

	hub.PresentAdvisory("first")
	hub.PresentAdvisory("second")

	conn := dial(t, url)
	msg := readMessage(t, conn)
	if msg.Type != "advisory" || msg.Text != "second" {
		t.Errorf("Expected replay of the last advisory, got %+v", msg)
	}
}

func TestHub_PresentWithoutViewersSkipsEncoding(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	encoded := false
	hub.encode = func(*vision.Frame) ([]byte, error) {
		encoded = true
		return nil, nil
	}

	frame, _ := vision.NewFrame(1, 1, vision.BGR, make([]byte, 3))
	hub.Present(frame)
	if encoded {
		t.Error("Frame encoded with no viewers")
	}
}

func TestHub_DropsWhenLagging(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())

	// Run is not started, nothing drains the buffer
	for i := 0; i < broadcastBuffer*2; i++ {
		hub.PresentAdvisory("x")
	}
	if len(hub.broadcast) != broadcastBuffer {
		t.Errorf("Expected a full buffer of %d, got %d", broadcastBuffer, len(hub.broadcast))
	}
}

func TestMJPEGSink_EncodeFailureIsLogged(t *testing.T) {
	sink := NewMJPEGSink(logger.NewDiscard())
	sink.encode = func(*vision.Frame) ([]byte, error) { return nil, errors.New("boom") }

	frame, _ := vision.NewFrame(1, 1, vision.BGR, make([]byte, 3))
	sink.Present(frame)
	sink.PresentAdvisory("ignored")

	if sink.Handler() == nil {
		t.Error("Expected a stream handler")
	}
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type publishedMessage struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes. Other methods are not used.
type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	published []publishedMessage
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(nil)
}

func TestMQTTAdvisorySink_PublishesLines(t *testing.T) {
	client := &fakeClient{}
	sink := NewMQTTAdvisorySink(client, "wastesort/advisory", logger.NewDiscard())

	frame, _ := vision.NewFrame(1, 1, vision.BGR, make([]byte, 3))
	sink.Present(frame)
	sink.PresentAdvisory("battery — dispose as: Hazardous\npen — dispose as: Other")

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.published) != 1 {
		t.Fatalf("Expected 1 publish, got %d", len(client.published))
	}
	got := client.published[0]
	if got.topic != "wastesort/advisory" {
		t.Errorf("topic = %s", got.topic)
	}

	var msg AdvisoryMessage
	if err := json.Unmarshal(got.payload, &msg); err != nil {
		t.Fatalf("Invalid payload: %v", err)
	}
	if len(msg.Lines) != 2 || msg.Lines[1] != "pen — dispose as: Other" {
		t.Errorf("Unexpected lines %v", msg.Lines)
	}
}
