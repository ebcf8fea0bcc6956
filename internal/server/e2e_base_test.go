package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/directchat/internal/auth"
	"github.com/Tyrowin/directchat/internal/blob"
	"github.com/Tyrowin/directchat/internal/config"
	"github.com/Tyrowin/directchat/internal/server"
	"github.com/Tyrowin/directchat/internal/store"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type baseWebsocketSuite struct {
	suite.Suite
	Config e2eConfig

	server   *server.Server
	http     *httptest.Server
	messages *store.BadgerMessageStore
	uploads  string
}

// wsClient keeps reading in the background so that control frames such as
// pings are answered while the test waits.
type wsClient struct {
	conn     *websocket.Conn
	frames   chan []byte
	closed   chan struct{}
	closeErr error
	silent   atomic.Bool
}

// frame is any server frame; exactly one of its groups is set.
type frame struct {
	Online    []auth.Identity   `json:"online"`
	Error     *server.ErrorBody `json:"error"`
	ID        string            `json:"_id"`
	Text      *string           `json:"text"`
	Sender    string            `json:"sender"`
	Recipient string            `json:"recipient"`
	File      *string           `json:"file"`
	raw       []byte
}

func (f frame) isPresence() bool { return f.Online != nil }
func (f frame) isMessage() bool  { return f.ID != "" }

// SetupSuite loads the environment configuration before running tests
func (s *baseWebsocketSuite) SetupSuite() {
	var err error
	s.Config, err = loadE2EConfig()
	s.Require().NoError(err)
}

func (s *baseWebsocketSuite) TearDownTest() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.server.Shutdown(ctx))
	s.http.Close()
	s.server = nil
}

// Step prints a colorized header for a scenario step.
func (s *baseWebsocketSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Start runs a fresh server backed by an in-memory Badger store and a
// temporary upload directory.
func (s *baseWebsocketSuite) Start(overrides ...func(*config.Config)) {
	s.StartWithStore(nil, overrides...)
}

// StartWithStore is Start with the message store wrapped by wrap, when set.
func (s *baseWebsocketSuite) StartWithStore(wrap func(store.MessageStore) store.MessageStore, overrides ...func(*config.Config)) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	cfg := config.Default()
	cfg.JWTSecret = s.Config.JWTSecret
	cfg.AllowedOrigins = "http://localhost:5173"
	cfg.UploadDir = s.T().TempDir()
	cfg.Heartbeat = config.HeartbeatConfig{
		PingInterval: s.Config.PingInterval,
		PongTimeout:  s.Config.PongTimeout,
	}
	cfg.ShutdownTimeout = 2 * time.Second
	for _, override := range overrides {
		override(&cfg)
	}
	s.Require().NoError(cfg.Validate())

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.messages = store.NewBadgerMessageStore(db, log)

	blobs, err := blob.NewDiskStore(cfg.UploadDir, log)
	s.Require().NoError(err)
	s.uploads = cfg.UploadDir

	var messages store.MessageStore = s.messages
	if wrap != nil {
		messages = wrap(messages)
	}

	relay := server.NewRelay(messages, blobs, cfg.PersistTimeout, log)
	s.server = server.New(cfg, auth.NewJWTVerifier([]byte(cfg.JWTSecret)), relay, log)
	s.server.StartHub()
	s.http = httptest.NewServer(s.server.Handler())
}

func (s *baseWebsocketSuite) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + path
}

// Dial connects with a token for identity, or anonymously when identity is nil.
func (s *baseWebsocketSuite) Dial(identity *auth.Identity) *wsClient {
	header := http.Header{}
	header.Set("Origin", "http://localhost:5173")
	if identity != nil {
		token, err := auth.IssueToken([]byte(s.Config.JWTSecret), *identity, time.Hour)
		s.Require().NoError(err)
		header.Set("Cookie", auth.TokenCookie+"="+token)
	}
	return s.DialWithHeader("/ws", header)
}

func (s *baseWebsocketSuite) DialWithHeader(path string, header http.Header) *wsClient {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(s.wsURL(path), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	s.Require().NoError(err)

	client := &wsClient{
		conn:   conn,
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	conn.SetPingHandler(client.answerPing)
	go client.readLoop()
	s.T().Cleanup(func() { _ = conn.Close() })
	return client
}

func (c *wsClient) readLoop() {
	defer close(c.closed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeErr = err
			return
		}
		c.frames <- data
	}
}

// answerPing behaves like the default ping handler until Silence is called.
func (c *wsClient) answerPing(appData string) error {
	if c.silent.Load() {
		return nil
	}
	err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	var netErr net.Error
	if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return nil
	}
	return err
}

// Silence stops answering pings, as a peer that vanished would.
func (c *wsClient) Silence() {
	c.silent.Store(true)
}

func (s *baseWebsocketSuite) Send(c *wsClient, payload any) {
	s.Require().NoError(c.conn.WriteJSON(payload))
}

// Await returns the first frame accepted by match, skipping the others.
func (s *baseWebsocketSuite) Await(c *wsClient, what string, match func(frame) bool) frame {
	timeout := time.After(s.Config.Wait)
	for {
		select {
		case data := <-c.frames:
			var f frame
			s.Require().NoError(json.Unmarshal(data, &f))
			f.raw = data
			if match(f) {
				return f
			}
		case <-c.closed:
			s.FailNow("connection closed while waiting for "+what, "%v", c.closeErr)
		case <-timeout:
			s.FailNow("timed out waiting for " + what)
		}
	}
}

// AwaitRoster waits for a presence frame listing exactly userIDs.
func (s *baseWebsocketSuite) AwaitRoster(c *wsClient, userIDs ...string) []auth.Identity {
	want := lo.Ternary(userIDs == nil, []string{}, userIDs)
	f := s.Await(c, fmt.Sprintf("roster %v", want), func(f frame) bool {
		if !f.isPresence() {
			return false
		}
		got := lo.Map(f.Online, func(identity auth.Identity, _ int) string { return identity.UserID })
		return lo.ElementsMatch(got, want)
	})
	return f.Online
}

func (s *baseWebsocketSuite) AwaitMessage(c *wsClient) frame {
	return s.Await(c, "message", frame.isMessage)
}

func (s *baseWebsocketSuite) AwaitError(c *wsClient) server.ErrorBody {
	f := s.Await(c, "error frame", func(f frame) bool { return f.Error != nil })
	return *f.Error
}

// ExpectNoMessage checks that no chat message arrives within d. Presence
// frames are ignored.
func (s *baseWebsocketSuite) ExpectNoMessage(c *wsClient, d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case data := <-c.frames:
			var f frame
			s.Require().NoError(json.Unmarshal(data, &f))
			s.Require().False(f.isMessage(), "unexpected message %s", data)
			s.Require().Nil(f.Error, "unexpected error frame %s", data)
		case <-deadline:
			return
		}
	}
}

// AwaitClosed waits for the server to close the connection and returns the
// read error that ended it.
func (s *baseWebsocketSuite) AwaitClosed(c *wsClient) error {
	select {
	case <-c.closed:
		return c.closeErr
	case <-time.After(s.Config.Wait):
		s.FailNow("connection still open")
		return nil
	}
}

func (s *baseWebsocketSuite) StoredMessages() []store.Message {
	var messages []store.Message
	s.Require().NoError(s.messages.Scan(0, func(m store.Message) bool {
		messages = append(messages, m)
		return true
	}))
	return messages
}
