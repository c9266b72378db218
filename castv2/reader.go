package castv2

import (
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"
)

// readLoop owns exactly one connected socket for the lifetime of one
// episode. It reads frames until the socket fails or Close is called,
// classifying each into a heartbeat reply, a correlated response, a
// custom string event, a standard spontaneous event, or a raw binary
// event, per SPEC_FULL.md §4.4.
//
// On any terminal read error it schedules the channel's teardown from a
// new goroutine rather than calling closeInternal inline: closeInternal
// waits on readerWG, and this goroutine is a member of that group, so
// calling it synchronously here would deadlock.
func (c *Channel) readLoop(r io.Reader) {
	defer c.readerWG.Done()

	for {
		raw, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("read loop terminating", zap.Error(err))
			}
			go c.closeInternal()
			return
		}

		env, err := DecodeEnvelope(raw)
		if err != nil {
			c.logger.Warn("dropping malformed envelope", zap.Error(err))
			continue
		}

		switch env.PayloadType {
		case PayloadTypeBinary:
			c.dispatchBinary(env)
		case PayloadTypeString:
			c.dispatchString(env)
		default:
			c.logger.Warn("dropping envelope with unknown payload type")
		}
	}
}

// dispatchBinary forwards an opaque binary payload straight to the
// listener; this protocol's own binary traffic (device auth) never
// reaches here because it is fully consumed during Connect.
func (c *Channel) dispatchBinary(env *Envelope) {
	go c.listener.OnBinaryEvent(env.Namespace, env.PayloadBinary)
}

// dispatchString routes a STRING payload: heartbeat traffic first, then
// the three-step classification rule from SPEC_FULL.md §4.4: a
// correlated reply, a custom event, or a standard spontaneous event, in
// that order. Each listener delivery happens on its own goroutine so one
// slow listener callback never stalls the reader or other in-flight
// deliveries.
func (c *Channel) dispatchString(env *Envelope) {
	raw, err := rewriteTypeKey([]byte(env.PayloadUTF8))
	if err != nil {
		c.logger.Warn("dropping unparseable string payload", zap.Error(err))
		return
	}

	if env.Namespace == NamespaceHeartbeat {
		c.handleHeartbeatPayload(raw)
		return
	}

	id := peekRequestID(raw)
	if id > 0 && c.registry.fulfill(id, raw) {
		return
	}

	if id == 0 && peekResponseType(raw) == "" {
		go c.listener.OnStringCustomEvent(env.Namespace, env.PayloadUTF8)
		return
	}

	msg, err := decodeControlMessage(raw)
	if err != nil {
		c.logger.Warn("dropping undecodable spontaneous event", zap.Error(err), zap.String("namespace", env.Namespace))
		return
	}
	go c.listener.OnSpontaneousEvent(env.Namespace, msg)
}

// handleHeartbeatPayload answers an inbound PING with a PONG and counts
// an inbound PONG as a received heartbeat; anything else on this
// namespace is logged and dropped.
func (c *Channel) handleHeartbeatPayload(raw json.RawMessage) {
	switch peekResponseType(raw) {
	case "PING":
		if err := c.writeControlMessage(NamespaceHeartbeat, ReceiverDestination, newPongMessage()); err != nil {
			c.logger.Debug("heartbeat pong write failed", zap.Error(err))
		}
	case "PONG":
		c.metrics.heartbeatReceived()
	default:
		c.logger.Debug("dropping unrecognized heartbeat payload")
	}
}

// rewriteTypeKey performs the type -> responseType rewrite described in
// SPEC_FULL.md §4.4: inbound JSON is always keyed "type", but this
// package's response types decode against "responseType", keeping the
// inbound discriminator apart from the outbound requests' "type" field.
func rewriteTypeKey(payload []byte) (json.RawMessage, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(payload, &generic); err != nil {
		return nil, err
	}
	if t, ok := generic["type"]; ok {
		generic["responseType"] = t
		delete(generic, "type")
	}
	return json.Marshal(generic)
}
