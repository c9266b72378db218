package castv2

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// channelState is the lifecycle state machine from SPEC_FULL.md §3.
type channelState int32

const (
	stateDisconnected channelState = iota
	stateHandshaking
	stateConnected
	stateClosing
)

// DefaultPort is the TCP port Cast receivers listen on.
const DefaultPort = 8009

// DefaultRequestTimeout is used when Options.RequestTimeout is zero.
const DefaultRequestTimeout = 30 * time.Second

// Options configures a Channel. Host, RemoteName and SenderID are
// required; Port defaults to DefaultPort and everything else has a
// documented default.
type Options struct {
	Host       string
	Port       int
	RemoteName string
	SenderID   string

	RequestTimeout time.Duration
	Listener       Listener
	Logger         *zap.Logger

	// Registerer, if non-nil, is used to register the channel's
	// Prometheus collectors. Nil disables metrics entirely.
	Registerer prometheus.Registerer

	// dialTLS is overridable by tests to avoid real TLS handshakes.
	dialTLS func(ctx context.Context, addr string) (net.Conn, error)
}

func (o *Options) validate() error {
	if strings.TrimSpace(o.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrConfigError)
	}
	if strings.TrimSpace(o.SenderID) == "" {
		return fmt.Errorf("%w: sender id is required", ErrConfigError)
	}
	if strings.TrimSpace(o.RemoteName) == "" {
		return fmt.Errorf("%w: remote name is required", ErrConfigError)
	}
	return nil
}

// Channel is a long-lived, multiplexed session with a single Cast
// receiver. See SPEC_FULL.md §4.6 for the full contract. The zero value
// is not usable; construct with NewChannel.
type Channel struct {
	host           string
	port           int
	remoteName     string
	senderID       string
	requestTimeout time.Duration
	listener       Listener
	logger         *zap.Logger
	metrics        *channelMetrics
	dialTLS        func(ctx context.Context, addr string) (net.Conn, error)

	registry *requestRegistry

	// mu guards the lifecycle state and the handles to per-episode
	// resources (socket, writer, heartbeat, closeOnce); closing is an
	// atomic and subSessions has its own subMu. Transitions are atomic with respect to send/receive,
	// per SPEC_FULL.md §3.
	mu        sync.Mutex
	state     channelState
	conn      net.Conn
	writer    *frameWriter
	heartbeat *heartbeatTimer
	readerWG  sync.WaitGroup
	closeOnce *sync.Once
	closing   atomic.Bool

	subMu       sync.Mutex
	subSessions map[string]struct{}
}

// NewChannel constructs a Channel. Connect must be called (explicitly or
// implicitly via the first request) before any request can succeed. The
// implicit reconnect covers the receiver-namespace calls (GetStatus,
// IsAppAvailable, Launch, Stop, SetVolume); Load, Play, Pause, Seek,
// GetMediaStatus and SendGeneric do not reconnect a closed channel and
// return ErrChannelClosed instead.
func NewChannel(opts Options) (*Channel, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	timeout := opts.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	listener := opts.Listener
	if listener == nil {
		listener = NopListener{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger()
	}

	c := &Channel{
		host:           opts.Host,
		port:           port,
		remoteName:     opts.RemoteName,
		senderID:       opts.SenderID,
		requestTimeout: timeout,
		listener:       listener,
		logger:         logger,
		metrics:        newChannelMetrics(opts.Registerer, opts.RemoteName),
		dialTLS:        opts.dialTLS,
		registry:       newRequestRegistry(),
		subSessions:    make(map[string]struct{}),
	}
	if c.dialTLS == nil {
		c.dialTLS = c.defaultDialTLS
	}
	return c, nil
}

// defaultDialTLS trusts any server certificate, per SPEC_FULL.md §4.6:
// "the protocol predates meaningful cert pinning on these devices."
func (c *Channel) defaultDialTLS(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true}}
	return dialer.DialContext(ctx, "tcp", addr)
}

// IsClosed reports true iff the socket is absent, closed, or the channel
// is not in the CONNECTED state.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil || c.state != stateConnected
}

func (c *Channel) addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Connect performs the TLS dial, device-auth handshake, starts the
// reader and heartbeat, and opens the receiver-0 virtual connection. It
// is idempotent: calling it while already CONNECTED is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.state == stateHandshaking {
		c.mu.Unlock()
		return fmt.Errorf("%w: connect already in progress", ErrConfigError)
	}
	c.state = stateHandshaking
	c.closeOnce = &sync.Once{}
	c.closing.Store(false)
	c.mu.Unlock()

	conn, err := c.dialTLS(ctx, c.addr())
	if err != nil {
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		return &IOError{Op: "dial", Err: err}
	}

	writer := newFrameWriter(conn)

	authEnv := &Envelope{
		ProtocolVersion: CastV2_1_0,
		SourceID:        c.senderID,
		DestinationID:   ReceiverDestination,
		Namespace:       NamespaceDeviceAuth,
		PayloadType:     PayloadTypeBinary,
		PayloadBinary:   marshalAuthChallenge(),
	}
	data, err := authEnv.Marshal()
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		return err
	}
	if err := writer.WriteFrame(data); err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		return err
	}

	replyFrame, err := readFrame(conn)
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		return err
	}
	replyEnv, err := DecodeEnvelope(replyFrame)
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		return err
	}
	authReply, err := decodeDeviceAuthMessage(replyEnv.PayloadBinary)
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		return err
	}
	if authReply.errorType != nil {
		conn.Close()
		c.mu.Lock()
		c.state = stateDisconnected
		c.mu.Unlock()
		return &AuthError{Reason: fmt.Sprintf("error_type=%d", *authReply.errorType)}
	}

	c.mu.Lock()
	c.conn = conn
	c.writer = writer
	c.state = stateConnected
	c.mu.Unlock()

	c.subMu.Lock()
	c.subSessions = map[string]struct{}{ReceiverDestination: {}}
	c.subMu.Unlock()

	c.readerWG.Add(1)
	go c.readLoop(conn)

	c.mu.Lock()
	c.heartbeat = startHeartbeat(c.sendPing)
	c.mu.Unlock()

	connectMsg := newConnectMessage()
	if err := c.writeControlMessage(NamespaceConnection, ReceiverDestination, connectMsg); err != nil {
		c.logger.Warn("failed to send initial CONNECT", zap.Error(err))
	}

	c.listener.OnConnectionState(true)
	return nil
}

// sendPing is the heartbeat timer's fire callback.
func (c *Channel) sendPing() {
	ping := newPingMessage()
	if err := c.writeControlMessage(NamespaceHeartbeat, ReceiverDestination, ping); err != nil {
		c.logger.Debug("heartbeat ping write failed", zap.Error(err))
		return
	}
	c.metrics.heartbeatSent()
}

// writeEnvelope hands a fully built envelope to the writer, failing with
// ErrChannelClosed if there is no live socket.
func (c *Channel) writeEnvelope(env *Envelope) error {
	c.mu.Lock()
	w := c.writer
	c.mu.Unlock()
	if w == nil {
		return fmt.Errorf("%w: no active connection", ErrChannelClosed)
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return w.WriteFrame(data)
}

// writeControlMessage marshals msg to JSON and writes it as a STRING
// envelope to destinationID in namespace.
func (c *Channel) writeControlMessage(namespace, destinationID string, msg controlMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.writeEnvelope(&Envelope{
		ProtocolVersion: CastV2_1_0,
		SourceID:        c.senderID,
		DestinationID:   destinationID,
		Namespace:       namespace,
		PayloadType:     PayloadTypeString,
		PayloadUTF8:     string(body),
	})
}

// Close tears the channel down: cancels the heartbeat, stops the reader,
// closes the socket, clears the sub-session set, cancels every pending
// waiter with ErrChannelClosed, and notifies the listener. It is
// idempotent and safe to call from the reader's own failure path.
func (c *Channel) Close() error {
	c.closeInternal()
	return nil
}

func (c *Channel) closeInternal() {
	c.mu.Lock()
	if c.state == stateDisconnected {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == stateConnected
	c.state = stateClosing
	hb := c.heartbeat
	c.heartbeat = nil
	conn := c.conn
	c.conn = nil
	c.writer = nil
	once := c.closeOnce
	c.mu.Unlock()

	if once != nil {
		once.Do(func() {
			if hb != nil {
				hb.Stop()
			}
			if conn != nil {
				conn.Close()
			}
		})
	}

	// Waiting here is safe even when closeInternal is invoked from the
	// reader's own exit path, because that path always defers the call
	// to a fresh goroutine (see readLoop) rather than calling inline.
	c.readerWG.Wait()

	c.subMu.Lock()
	c.subSessions = make(map[string]struct{})
	c.subMu.Unlock()

	c.registry.cancelAll(ErrChannelClosed)

	c.mu.Lock()
	c.state = stateDisconnected
	c.mu.Unlock()

	if wasConnected && !c.closing.Swap(true) {
		c.listener.OnConnectionState(false)
	}
}

// ensureSubSession opens a virtual connection to destinationID if one
// has not already been opened on this channel episode.
func (c *Channel) ensureSubSession(destinationID string) error {
	c.subMu.Lock()
	_, exists := c.subSessions[destinationID]
	if !exists {
		c.subSessions[destinationID] = struct{}{}
	}
	c.subMu.Unlock()
	if exists {
		return nil
	}
	if err := c.writeControlMessage(NamespaceConnection, destinationID, newConnectMessage()); err != nil {
		c.subMu.Lock()
		delete(c.subSessions, destinationID)
		c.subMu.Unlock()
		return err
	}
	return nil
}

// sendRequest is the unified typed-send primitive from SPEC_FULL.md
// §4.6. expectResponse=false performs a fire-and-forget send.
func (c *Channel) sendRequest(ctx context.Context, namespace, destinationID string, req requestMessage, expectResponse bool) (controlMessage, error) {
	if c.IsClosed() {
		if err := c.Connect(ctx); err != nil {
			return nil, &IOError{Op: "reconnect", Err: err}
		}
		c.metrics.reconnected()
	}

	id := c.registry.allocateID()
	req.SetRequestID(id)
	if got := req.GetRequestID(); got != id {
		return nil, fmt.Errorf("%w: request id round-trip mismatch", ErrInternal)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		ProtocolVersion: CastV2_1_0,
		SourceID:        c.senderID,
		DestinationID:   destinationID,
		Namespace:       namespace,
		PayloadType:     PayloadTypeString,
		PayloadUTF8:     string(body),
	}

	if !expectResponse {
		return nil, c.writeEnvelope(env)
	}

	waiter, err := c.registry.register(id, decodeControlMessage)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := c.writeEnvelope(env); err != nil {
		c.registry.cancel(id)
		return nil, err
	}
	c.metrics.requestSent()

	waitCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	msg, err := c.registry.wait(waitCtx, waiter)
	c.metrics.observeRequestDuration(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, ErrChannelClosed):
			c.metrics.requestFailed("channel_closed")
		case errors.Is(err, ErrRequestTimeout):
			c.metrics.requestFailed("timeout")
		case errors.Is(err, context.Canceled):
			c.metrics.requestFailed("cancelled")
		default:
			c.metrics.requestFailed("decode")
		}
		return nil, err
	}

	switch m := msg.(type) {
	case *invalidRequestResponse:
		c.metrics.requestFailed("bad_request")
		return nil, &BadRequestError{Reason: m.Reason}
	case *loadFailedResponse:
		c.metrics.requestFailed("load_failed")
		return nil, &MediaLoadFailedError{Reason: m.Reason}
	case *launchErrorResponse:
		c.metrics.requestFailed("launch_error")
		return nil, &LaunchError{Reason: m.Reason}
	}
	return msg, nil
}

// ---- high-level receiver/media wrappers --------------------------------

// GetStatus returns the receiver's current status.
func (c *Channel) GetStatus(ctx context.Context) (*ReceiverStatus, error) {
	msg, err := c.sendRequest(ctx, NamespaceReceiver, ReceiverDestination, newGetStatusRequest(), true)
	if err != nil {
		return nil, err
	}
	rs, ok := msg.(*receiverStatusResponse)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected response to GET_STATUS", ErrDecode)
	}
	return &rs.Status, nil
}

// IsAppAvailable reports whether appID is launchable on this receiver.
func (c *Channel) IsAppAvailable(ctx context.Context, appID string) (bool, error) {
	msg, err := c.sendRequest(ctx, NamespaceReceiver, ReceiverDestination, newGetAppAvailabilityRequest(appID), true)
	if err != nil {
		return false, err
	}
	av, ok := msg.(*appAvailabilityResponse)
	if !ok {
		return false, fmt.Errorf("%w: unexpected response to GET_APP_AVAILABILITY", ErrDecode)
	}
	return av.Availability[appID] == AppAvailable, nil
}

// Launch starts appID and returns the resulting receiver status.
func (c *Channel) Launch(ctx context.Context, appID string) (*ReceiverStatus, error) {
	return c.receiverRequestStatus(ctx, newLaunchRequest(appID))
}

// Stop ends the running session identified by sessionID.
func (c *Channel) Stop(ctx context.Context, sessionID string) (*ReceiverStatus, error) {
	return c.receiverRequestStatus(ctx, newStopRequest(sessionID))
}

// SetVolume sets the receiver's output volume (0.0-1.0).
func (c *Channel) SetVolume(ctx context.Context, level float64) (*ReceiverStatus, error) {
	return c.receiverRequestStatus(ctx, newSetVolumeRequest(level))
}

func (c *Channel) receiverRequestStatus(ctx context.Context, req requestMessage) (*ReceiverStatus, error) {
	msg, err := c.sendRequest(ctx, NamespaceReceiver, ReceiverDestination, req, true)
	if err != nil {
		return nil, err
	}
	rs, ok := msg.(*receiverStatusResponse)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected receiver response", ErrDecode)
	}
	return &rs.Status, nil
}

// Load starts playback of media on the application at destinationID,
// within the cast session sessionID.
func (c *Channel) Load(ctx context.Context, destinationID, sessionID string, media MediaInformation, autoplay bool, customData map[string]interface{}) ([]MediaStatus, error) {
	if err := c.ensureSubSession(destinationID); err != nil {
		return nil, err
	}
	return c.mediaRequestStatus(ctx, destinationID, newLoadRequest(sessionID, media, autoplay, customData))
}

// Play resumes playback of mediaSessionID.
func (c *Channel) Play(ctx context.Context, destinationID, sessionID string, mediaSessionID int) ([]MediaStatus, error) {
	if err := c.ensureSubSession(destinationID); err != nil {
		return nil, err
	}
	return c.mediaRequestStatus(ctx, destinationID, newPlayRequest(sessionID, mediaSessionID))
}

// Pause pauses playback of mediaSessionID.
func (c *Channel) Pause(ctx context.Context, destinationID, sessionID string, mediaSessionID int) ([]MediaStatus, error) {
	if err := c.ensureSubSession(destinationID); err != nil {
		return nil, err
	}
	return c.mediaRequestStatus(ctx, destinationID, newPauseRequest(sessionID, mediaSessionID))
}

// Seek moves playback of mediaSessionID to currentTime seconds.
func (c *Channel) Seek(ctx context.Context, destinationID, sessionID string, mediaSessionID int, currentTime float64) ([]MediaStatus, error) {
	if err := c.ensureSubSession(destinationID); err != nil {
		return nil, err
	}
	return c.mediaRequestStatus(ctx, destinationID, newSeekRequest(sessionID, mediaSessionID, currentTime))
}

// GetMediaStatus fetches the current media status from destinationID.
func (c *Channel) GetMediaStatus(ctx context.Context, destinationID string) ([]MediaStatus, error) {
	if err := c.ensureSubSession(destinationID); err != nil {
		return nil, err
	}
	return c.mediaRequestStatus(ctx, destinationID, newGetStatusRequest())
}

func (c *Channel) mediaRequestStatus(ctx context.Context, destinationID string, req requestMessage) ([]MediaStatus, error) {
	msg, err := c.sendRequest(ctx, NamespaceMedia, destinationID, req, true)
	if err != nil {
		return nil, err
	}
	ms, ok := msg.(*mediaStatusResponse)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected media response", ErrDecode)
	}
	return ms.Status, nil
}

// SendGeneric ensures the sub-session to destinationID and forwards an
// application-defined request, for namespaces this package does not
// model directly.
func (c *Channel) SendGeneric(ctx context.Context, destinationID, namespace string, req requestMessage, expectResponse bool) (controlMessage, error) {
	if err := c.ensureSubSession(destinationID); err != nil {
		return nil, err
	}
	return c.sendRequest(ctx, namespace, destinationID, req, expectResponse)
}
