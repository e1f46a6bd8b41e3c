// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/chatvault/chatvault/lib/channels"
	"github.com/chatvault/chatvault/lib/clock"
	"github.com/chatvault/chatvault/lib/codec"
	"github.com/chatvault/chatvault/lib/testutil"
	"github.com/chatvault/chatvault/lib/wire"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeTransport is an in-memory Transport fed by the test.
type fakeTransport struct {
	inbound  chan []byte
	outbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, errors.New("transport closed")
	case message := <-t.inbound:
		return message, nil
	}
}

func (t *fakeTransport) WriteMessage(_ context.Context, data []byte) error {
	select {
	case <-t.closed:
		return errors.New("transport closed")
	case t.outbound <- data:
		return nil
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// streamCompressor produces the connection's inbound zlib-stream: one
// shared deflate stream, sync flush per message, zlib header on the
// first message.
type streamCompressor struct {
	buf     bytes.Buffer
	writer  *flate.Writer
	started bool
}

func newStreamCompressor(t *testing.T) *streamCompressor {
	t.Helper()
	c := &streamCompressor{}
	writer, err := flate.NewWriter(&c.buf, flate.BestSpeed)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	c.writer = writer
	return c
}

func (c *streamCompressor) compress(t *testing.T, data []byte) []byte {
	t.Helper()
	c.buf.Reset()
	if _, err := c.writer.Write(data); err != nil {
		t.Fatalf("compressing: %v", err)
	}
	if err := c.writer.Flush(); err != nil {
		t.Fatalf("flushing: %v", err)
	}

	var message []byte
	if !c.started {
		message = append(message, 0x78, 0x9c)
		c.started = true
	}
	return append(message, c.buf.Bytes()...)
}

// recordedEvent is one dispatch delivered to the test handler.
type recordedEvent struct {
	Type string
	Data codec.RawMessage
}

type channelHandler struct {
	ready  chan wire.User
	events chan recordedEvent
}

func newChannelHandler() *channelHandler {
	return &channelHandler{
		ready:  make(chan wire.User, 4),
		events: make(chan recordedEvent, 16),
	}
}

func (h *channelHandler) HandleReady(user wire.User) { h.ready <- user }

func (h *channelHandler) HandleEvent(_ context.Context, eventType string, data codec.RawMessage) {
	h.events <- recordedEvent{Type: eventType, Data: data}
}

// harness runs one Conn against a fake transport.
type harness struct {
	transport  *fakeTransport
	compressor *streamCompressor
	clock      *clock.FakeClock
	session    *Session
	handler    *channelHandler
	done       chan error
}

func startConn(t *testing.T, session *Session) *harness {
	t.Helper()
	h := &harness{
		transport:  newFakeTransport(),
		compressor: newStreamCompressor(t),
		clock:      clock.Fake(testEpoch),
		session:    session,
		handler:    newChannelHandler(),
		done:       make(chan error, 1),
	}

	conn, err := NewConn(ConnConfig{
		Transport: h.transport,
		Session:   session,
		Handler:   h.handler,
		Clock:     h.clock,
	})
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { h.done <- conn.Run(ctx) }()
	return h
}

func (h *harness) sendFrame(t *testing.T, frame wire.Frame) {
	t.Helper()
	encoded, err := wire.Encode(frame)
	if err != nil {
		t.Fatalf("encoding frame: %v", err)
	}
	testutil.RequireSend(t, h.transport.inbound, h.compressor.compress(t, encoded), 5*time.Second, "feeding frame")
}

func (h *harness) sendHello(t *testing.T, intervalMillis int64) {
	t.Helper()
	hello, err := wire.MarshalData(wire.OpHello, wire.HelloData{HeartbeatInterval: intervalMillis})
	if err != nil {
		t.Fatal(err)
	}
	h.sendFrame(t, hello)
}

func (h *harness) sendDispatch(t *testing.T, eventType string, seq int64, payload any) {
	t.Helper()
	data, err := codec.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	h.sendFrame(t, wire.Frame{Op: wire.OpDispatch, Type: eventType, Seq: &seq, Data: data})
}

func (h *harness) recvFrame(t *testing.T) wire.Frame {
	t.Helper()
	raw := testutil.RequireReceive(t, h.transport.outbound, 5*time.Second, "waiting for outbound frame")
	frame, err := wire.Decode(raw)
	if err != nil {
		t.Fatalf("decoding outbound frame: %v", err)
	}
	return frame
}

func readyPayload(sessionID string) wire.ReadyData {
	return wire.ReadyData{
		User:      wire.User{ID: "u1", Username: "archivist", Discriminator: "0001"},
		SessionID: sessionID,
		PrivateChannels: []wire.Channel{
			{ID: "10", Type: int(channels.KindDirect)},
			{ID: "11", Type: int(channels.KindGroup)},
		},
		Guilds: []wire.Guild{
			{ID: "g1", Channels: []wire.Channel{
				{ID: "12", Type: int(channels.KindGuildText)},
				{ID: "13", Type: int(channels.KindGuildVoice)},
			}},
		},
	}
}

func TestHelloTriggersIdentifyOnFreshSession(t *testing.T) {
	h := startConn(t, NewSession("token-a"))
	h.sendHello(t, 41250)

	frame := h.recvFrame(t)
	if frame.Op != wire.OpIdentify {
		t.Fatalf("op = %v, want identify", frame.Op)
	}
	var identify wire.IdentifyData
	if err := codec.Unmarshal(frame.Data, &identify); err != nil {
		t.Fatalf("decoding identify: %v", err)
	}
	if identify.Token != "token-a" {
		t.Errorf("token = %q", identify.Token)
	}
	if identify.Intents != wire.DefaultIntents {
		t.Errorf("intents = %d, want %d", identify.Intents, wire.DefaultIntents)
	}
}

func TestReadySeedsSessionAndChannelCache(t *testing.T) {
	session := NewSession("token-a")
	h := startConn(t, session)
	h.sendHello(t, 41250)
	h.recvFrame(t) // identify

	h.sendDispatch(t, wire.EventReady, 1, readyPayload("sess-1"))

	user := testutil.RequireReceive(t, h.handler.ready, 5*time.Second, "waiting for ready")
	if user.Username != "archivist" {
		t.Errorf("user = %+v", user)
	}
	if session.ID() != "sess-1" {
		t.Errorf("session id = %q, want sess-1", session.ID())
	}
	if session.Channels().Len() != 4 {
		t.Errorf("cached channels = %d, want 4", session.Channels().Len())
	}
	entry, ok := session.Channels().Lookup("12")
	if !ok || entry.Kind != channels.KindGuildText || entry.GuildID != "g1" {
		t.Errorf("channel 12 entry = %+v ok=%v", entry, ok)
	}
}

func TestChannelCreateExtendsCache(t *testing.T) {
	session := NewSession("token-a")
	h := startConn(t, session)
	h.sendHello(t, 41250)
	h.recvFrame(t)
	h.sendDispatch(t, wire.EventReady, 1, readyPayload("sess-1"))
	testutil.RequireReceive(t, h.handler.ready, 5*time.Second, "ready")

	h.sendDispatch(t, wire.EventChannelCreate, 2, wire.Channel{ID: "99", Type: int(channels.KindDirect)})
	// A later event through the same frame channel proves the insert
	// was processed.
	h.sendDispatch(t, wire.EventTypingStart, 3, map[string]any{"channel_id": "99"})
	testutil.RequireReceive(t, h.handler.events, 5*time.Second, "typing event")

	entry, ok := session.Channels().Lookup("99")
	if !ok || entry.Kind != channels.KindDirect {
		t.Errorf("channel 99 entry = %+v ok=%v", entry, ok)
	}
}

func TestResumeAfterConnectionDrop(t *testing.T) {
	session := NewSession("token-a")

	first := startConn(t, session)
	first.sendHello(t, 41250)
	first.recvFrame(t) // identify
	first.sendDispatch(t, wire.EventReady, 1, readyPayload("sess-1"))
	testutil.RequireReceive(t, first.handler.ready, 5*time.Second, "ready")
	first.sendDispatch(t, wire.EventMessageCreate, 5, map[string]any{"id": "m1", "channel_id": "10"})
	testutil.RequireReceive(t, first.handler.events, 5*time.Second, "message event")

	first.transport.Close()
	if err := testutil.RequireReceive(t, first.done, 5*time.Second, "first conn exit"); err == nil {
		t.Fatal("dropped connection should surface an error")
	}

	second := startConn(t, session)
	second.sendHello(t, 41250)

	frame := second.recvFrame(t)
	if frame.Op != wire.OpResume {
		t.Fatalf("op = %v, want resume", frame.Op)
	}
	var resume wire.ResumeData
	if err := codec.Unmarshal(frame.Data, &resume); err != nil {
		t.Fatalf("decoding resume: %v", err)
	}
	if resume.SessionID != "sess-1" || resume.Seq != 5 || resume.Token != "token-a" {
		t.Errorf("resume = %+v", resume)
	}
}

func decodeHeartbeatSeq(t *testing.T, frame wire.Frame) *int64 {
	t.Helper()
	if frame.Op != wire.OpHeartbeat {
		t.Fatalf("op = %v, want heartbeat", frame.Op)
	}
	var seq *int64
	if err := codec.Unmarshal(frame.Data, &seq); err != nil {
		t.Fatalf("decoding heartbeat payload: %v", err)
	}
	return seq
}

func TestHeartbeatCarriesSequenceCursor(t *testing.T) {
	h := startConn(t, NewSession("token-a"))
	h.sendHello(t, 41250)
	h.recvFrame(t) // identify

	// First beat: no dispatch seen yet, the cursor is null.
	h.clock.WaitForTimers(1)
	h.clock.Advance(41250 * time.Millisecond)
	if seq := decodeHeartbeatSeq(t, h.recvFrame(t)); seq != nil {
		t.Errorf("first heartbeat seq = %d, want null", *seq)
	}

	h.sendFrame(t, wire.Frame{Op: wire.OpHeartbeatAck})
	h.sendDispatch(t, wire.EventMessageCreate, 7, map[string]any{"id": "m1", "channel_id": "10"})
	testutil.RequireReceive(t, h.handler.events, 5*time.Second, "message event")

	h.clock.Advance(41250 * time.Millisecond)
	seq := decodeHeartbeatSeq(t, h.recvFrame(t))
	if seq == nil || *seq != 7 {
		t.Errorf("second heartbeat seq = %v, want 7", seq)
	}
}

func TestNonDispatchFramesLeaveCursorUntouched(t *testing.T) {
	h := startConn(t, NewSession("token-a"))
	h.sendHello(t, 41250)
	h.recvFrame(t)

	h.sendDispatch(t, wire.EventMessageCreate, 7, map[string]any{"id": "m1", "channel_id": "10"})
	testutil.RequireReceive(t, h.handler.events, 5*time.Second, "message event")
	h.sendFrame(t, wire.Frame{Op: wire.OpHeartbeatAck})

	h.clock.WaitForTimers(1)
	h.clock.Advance(41250 * time.Millisecond)
	seq := decodeHeartbeatSeq(t, h.recvFrame(t))
	if seq == nil || *seq != 7 {
		t.Errorf("heartbeat seq = %v, want 7", seq)
	}
}

func TestMissedAcksForceReconnect(t *testing.T) {
	h := startConn(t, NewSession("token-a"))
	h.sendHello(t, 41250)
	h.recvFrame(t) // identify

	// First tick, one interval since the last ack: a beat goes out.
	h.clock.WaitForTimers(1)
	h.clock.Advance(41250 * time.Millisecond)
	h.recvFrame(t)

	// Second tick lands at exactly two intervals. The window is not
	// exceeded yet, so another beat goes out instead of a timeout.
	h.clock.Advance(41250 * time.Millisecond)
	h.recvFrame(t)
	select {
	case err := <-h.done:
		t.Fatalf("connection ended at the window boundary: %v", err)
	default:
	}

	// Third tick is past the window with no ack in sight.
	h.clock.Advance(41250 * time.Millisecond)
	err := testutil.RequireReceive(t, h.done, 5*time.Second, "waiting for heartbeat timeout")
	if err == nil {
		t.Fatal("missed acks should end the connection with an error")
	}
}

func TestAckedHeartbeatKeepsConnectionAlive(t *testing.T) {
	h := startConn(t, NewSession("token-a"))
	h.sendHello(t, 41250)
	h.recvFrame(t)

	h.clock.WaitForTimers(1)
	h.clock.Advance(41250 * time.Millisecond)
	h.recvFrame(t)

	h.sendFrame(t, wire.Frame{Op: wire.OpHeartbeatAck})
	h.sendDispatch(t, wire.EventTypingStart, 1, map[string]any{"channel_id": "10"})
	testutil.RequireReceive(t, h.handler.events, 5*time.Second, "sync event")

	h.clock.Advance(41250 * time.Millisecond)
	h.recvFrame(t) // second beat went out instead of a timeout

	select {
	case err := <-h.done:
		t.Fatalf("connection ended: %v", err)
	default:
	}
}

func TestUnhandledOpcodesIgnored(t *testing.T) {
	h := startConn(t, NewSession("token-a"))
	h.sendHello(t, 41250)
	h.recvFrame(t) // identify

	// Opcodes the connection does not handle, the server-side heartbeat
	// op included, pass without a reply and without ending the
	// connection.
	h.sendFrame(t, wire.Frame{Op: wire.OpHeartbeat})
	h.sendFrame(t, wire.Frame{Op: 42})
	h.sendDispatch(t, wire.EventTypingStart, 1, map[string]any{"channel_id": "10"})
	testutil.RequireReceive(t, h.handler.events, 5*time.Second, "sync event")

	select {
	case raw := <-h.transport.outbound:
		frame, err := wire.Decode(raw)
		t.Fatalf("unexpected outbound frame %+v (decode err %v)", frame, err)
	case err := <-h.done:
		t.Fatalf("connection ended: %v", err)
	default:
	}
}

func TestServerReconnectKeepsSessionResumable(t *testing.T) {
	session := NewSession("token-a")
	h := startConn(t, session)
	h.sendHello(t, 41250)
	h.recvFrame(t)
	h.sendDispatch(t, wire.EventReady, 1, readyPayload("sess-1"))
	testutil.RequireReceive(t, h.handler.ready, 5*time.Second, "ready")

	h.sendFrame(t, wire.Frame{Op: wire.OpReconnect})
	if err := testutil.RequireReceive(t, h.done, 5*time.Second, "conn exit"); err == nil {
		t.Fatal("reconnect order should end the connection with an error")
	}
	if session.ID() != "sess-1" {
		t.Errorf("session id = %q, want preserved sess-1", session.ID())
	}
}

func TestInvalidSessionClearsIdentity(t *testing.T) {
	session := NewSession("token-a")
	h := startConn(t, session)
	h.sendHello(t, 41250)
	h.recvFrame(t)
	h.sendDispatch(t, wire.EventReady, 1, readyPayload("sess-1"))
	testutil.RequireReceive(t, h.handler.ready, 5*time.Second, "ready")

	h.sendFrame(t, wire.Frame{Op: wire.OpInvalidSession})
	if err := testutil.RequireReceive(t, h.done, 5*time.Second, "conn exit"); err == nil {
		t.Fatal("invalid session should end the connection with an error")
	}
	if session.ID() != "" {
		t.Errorf("session id = %q, want cleared", session.ID())
	}
}

func TestMalformedMessageClosesConnection(t *testing.T) {
	h := startConn(t, NewSession("token-a"))
	testutil.RequireSend(t, h.transport.inbound, []byte("not a compressed frame"), 5*time.Second, "feeding garbage")

	if err := testutil.RequireReceive(t, h.done, 5*time.Second, "conn exit"); err == nil {
		t.Fatal("malformed input should end the connection with an error")
	}
}

func TestConnStopsOnContextCancel(t *testing.T) {
	transport := newFakeTransport()
	conn, err := NewConn(ConnConfig{
		Transport: transport,
		Session:   NewSession("token-a"),
		Clock:     clock.Fake(testEpoch),
	})
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	cancel()
	err = testutil.RequireReceive(t, done, 5*time.Second, "conn exit")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
