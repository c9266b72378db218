package castv2

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// fakeReceiver stands in for a real Cast device on the far end of a
// net.Pipe: it answers the device-auth handshake automatically (success
// unless told otherwise) and hands every other envelope to a
// test-supplied callback.
type fakeReceiver struct {
	conn    net.Conn
	writer  *frameWriter
	authErr *int32

	mu      sync.Mutex
	onFrame func(env *Envelope)
}

func newFakeReceiver(conn net.Conn) *fakeReceiver {
	return &fakeReceiver{conn: conn, writer: newFrameWriter(conn)}
}

func (f *fakeReceiver) setHandler(h func(env *Envelope)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFrame = h
}

func (f *fakeReceiver) send(env *Envelope) {
	data, err := env.Marshal()
	if err != nil {
		panic(err)
	}
	_ = f.writer.WriteFrame(data)
}

func (f *fakeReceiver) sendString(namespace, destinationID string, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.send(&Envelope{
		ProtocolVersion: CastV2_1_0,
		SourceID:        ReceiverDestination,
		DestinationID:   destinationID,
		Namespace:       namespace,
		PayloadType:     PayloadTypeString,
		PayloadUTF8:     string(body),
	})
}

// run drains frames until the pipe closes, answering device-auth
// handshakes inline and forwarding everything else to onFrame.
func (f *fakeReceiver) run() {
	go func() {
		for {
			raw, err := readFrame(f.conn)
			if err != nil {
				return
			}
			env, err := DecodeEnvelope(raw)
			if err != nil {
				continue
			}

			if env.Namespace == NamespaceDeviceAuth {
				f.replyAuth()
				continue
			}
			if env.Namespace == NamespaceConnection {
				continue // CONNECT/CLOSE carry no reply
			}

			f.mu.Lock()
			h := f.onFrame
			f.mu.Unlock()
			if h != nil {
				h(env)
			}
		}
	}()
}

func (f *fakeReceiver) replyAuth() {
	var body []byte
	if f.authErr != nil {
		var errBody []byte
		errBody = protowire.AppendTag(errBody, authErrorFieldType, protowire.VarintType)
		errBody = protowire.AppendVarint(errBody, uint64(*f.authErr))

		body = protowire.AppendTag(body, authFieldError, protowire.BytesType)
		body = protowire.AppendBytes(body, errBody)
	} else {
		body = protowire.AppendTag(body, authFieldResponse, protowire.BytesType)
		body = protowire.AppendBytes(body, []byte{0x01})
	}
	f.send(&Envelope{
		ProtocolVersion: CastV2_1_0,
		SourceID:        ReceiverDestination,
		DestinationID:   "sender-0",
		Namespace:       NamespaceDeviceAuth,
		PayloadType:     PayloadTypeBinary,
		PayloadBinary:   body,
	})
}

// newTestChannel wires a Channel to a fresh net.Pipe, returning the
// Channel (not yet connected) and the fake receiver on the other end.
// Each call to dialTLS hands out a brand new pipe, so tests exercising
// reconnect can tell episodes apart.
func newTestChannel(t *testing.T, configure func(*Options)) (*Channel, chan *fakeReceiver) {
	t.Helper()
	receivers := make(chan *fakeReceiver, 8)

	opts := Options{
		Host:           "device.local",
		SenderID:       "sender-0",
		RemoteName:     "test",
		RequestTimeout: 2 * time.Second,
	}
	opts.dialTLS = func(ctx context.Context, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		fr := newFakeReceiver(server)
		fr.run()
		receivers <- fr
		return client, nil
	}
	if configure != nil {
		configure(&opts)
	}

	ch, err := NewChannel(opts)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	return ch, receivers
}

func nextReceiver(t *testing.T, receivers chan *fakeReceiver) *fakeReceiver {
	t.Helper()
	select {
	case fr := <-receivers:
		return fr
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a fake receiver episode")
		return nil
	}
}

func TestChannelConnectAndGetStatusHappyPath(t *testing.T) {
	ch, receivers := newTestChannel(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Close()

	fr := nextReceiver(t, receivers)
	fr.setHandler(func(env *Envelope) {
		id := peekRequestID(json.RawMessage(mustRewrite(env.PayloadUTF8)))
		fr.sendString(NamespaceReceiver, "sender-0", &receiverStatusResponse{
			responseHeader: responseHeader{ResponseType: "RECEIVER_STATUS", RequestID: id},
			Status:         ReceiverStatus{Applications: []Application{{AppID: "ABCD", SessionID: "s1"}}},
		})
	})

	status, err := ch.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if len(status.Applications) != 1 || status.Applications[0].AppID != "ABCD" {
		t.Fatalf("status = %+v", status)
	}
}

func TestChannelConnectAuthFailure(t *testing.T) {
	var errType int32 = 1
	ch, _ := newTestChannel(t, nil)

	// Swap in a dialTLS whose fake receiver reports an auth error.
	ch.dialTLS = func(ctx context.Context, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		fr := newFakeReceiver(server)
		fr.authErr = &errType
		fr.run()
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := ch.Connect(ctx)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Connect error = %v, want *AuthError", err)
	}
}

func TestChannelRequestTimesOutWhenReceiverIsSilent(t *testing.T) {
	ch, receivers := newTestChannel(t, func(o *Options) {
		o.RequestTimeout = 30 * time.Millisecond
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Close()
	nextReceiver(t, receivers) // drain, but never reply

	_, err := ch.GetStatus(ctx)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("GetStatus error = %v, want ErrRequestTimeout", err)
	}
}

func TestChannelRespondsToHeartbeatPing(t *testing.T) {
	ch, receivers := newTestChannel(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Close()

	fr := nextReceiver(t, receivers)

	pongCh := make(chan struct{}, 1)
	fr.setHandler(func(env *Envelope) {
		if env.Namespace == NamespaceHeartbeat && peekResponseType(json.RawMessage(mustRewrite(env.PayloadUTF8))) == "PONG" {
			pongCh <- struct{}{}
		}
	})
	fr.sendString(NamespaceHeartbeat, "sender-0", newPingMessage())

	select {
	case <-pongCh:
	case <-time.After(time.Second):
		t.Fatal("expected a PONG in reply to PING")
	}
}

func TestChannelMultiplexesOutOfOrderReplies(t *testing.T) {
	ch, receivers := newTestChannel(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Close()
	fr := nextReceiver(t, receivers)

	var mu sync.Mutex
	var ids []int64
	allSeen := make(chan struct{})
	fr.setHandler(func(env *Envelope) {
		id := peekRequestID(json.RawMessage(mustRewrite(env.PayloadUTF8)))
		mu.Lock()
		ids = append(ids, id)
		n := len(ids)
		mu.Unlock()
		if n == 2 {
			close(allSeen)
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	var status1, status2 *ReceiverStatus
	var err1, err2 error
	go func() { defer wg.Done(); status1, err1 = ch.GetStatus(ctx) }()
	go func() { defer wg.Done(); status2, err2 = ch.GetStatus(ctx) }()

	<-allSeen
	mu.Lock()
	reqIDs := append([]int64(nil), ids...)
	mu.Unlock()

	// Reply out of order: second request first.
	fr.sendString(NamespaceReceiver, "sender-0", &receiverStatusResponse{
		responseHeader: responseHeader{ResponseType: "RECEIVER_STATUS", RequestID: reqIDs[1]},
		Status:         ReceiverStatus{Applications: []Application{{AppID: "SECOND"}}},
	})
	fr.sendString(NamespaceReceiver, "sender-0", &receiverStatusResponse{
		responseHeader: responseHeader{ResponseType: "RECEIVER_STATUS", RequestID: reqIDs[0]},
		Status:         ReceiverStatus{Applications: []Application{{AppID: "FIRST"}}},
	})

	wg.Wait()
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v, %v", err1, err2)
	}
	if status1.Applications[0].AppID != "FIRST" || status2.Applications[0].AppID != "SECOND" {
		t.Fatalf("mismatched correlation: status1=%+v status2=%+v", status1, status2)
	}
}

func TestChannelReconnectsOnSendAfterDisconnect(t *testing.T) {
	ch, receivers := newTestChannel(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fr1 := nextReceiver(t, receivers)
	_ = fr1

	// Tear the episode down through the same path Close uses.
	ch.closeInternal()
	if !ch.IsClosed() {
		t.Fatal("expected channel to report closed after closeInternal")
	}

	// The reconnect dial happens inside GetStatus, so the next episode's
	// receiver gets its reply handler before the channel writes to it.
	dial := ch.dialTLS
	ch.dialTLS = func(ctx context.Context, addr string) (net.Conn, error) {
		conn, err := dial(ctx, addr)
		if err != nil {
			return nil, err
		}
		fr2 := <-receivers
		fr2.setHandler(func(env *Envelope) {
			id := peekRequestID(json.RawMessage(mustRewrite(env.PayloadUTF8)))
			fr2.sendString(NamespaceReceiver, "sender-0", &receiverStatusResponse{
				responseHeader: responseHeader{ResponseType: "RECEIVER_STATUS", RequestID: id},
			})
		})
		return conn, nil
	}

	if _, err := ch.GetStatus(ctx); err != nil {
		t.Fatalf("GetStatus after reconnect: %v", err)
	}
	ch.Close()
}

func mustRewrite(payload string) []byte {
	raw, err := rewriteTypeKey([]byte(payload))
	if err != nil {
		panic(err)
	}
	return raw
}
