package castv2

// Listener is the bundle of sinks the Channel delivers connection-state
// changes and unsolicited traffic to, per SPEC_FULL.md §6. All methods
// may be called concurrently, from worker goroutines rather than the
// reader goroutine itself, so implementations must be safe for
// concurrent use.
type Listener interface {
	// OnConnectionState is called whenever the channel transitions into
	// or out of the CONNECTED state.
	OnConnectionState(connected bool)

	// OnSpontaneousEvent delivers a standard, uncorrelated inbound
	// control message (MEDIA_STATUS, RECEIVER_STATUS, CLOSE, or any
	// unrecognized responseType) as a decoded tree.
	OnSpontaneousEvent(namespace string, msg interface{})

	// OnStringCustomEvent delivers an inbound STRING payload whose JSON
	// carries neither a requestId nor a responseType: an
	// application-custom event.
	OnStringCustomEvent(namespace, payload string)

	// OnBinaryEvent delivers an inbound BINARY payload verbatim.
	OnBinaryEvent(namespace string, payload []byte)
}

// NopListener implements Listener with no-ops for every sink. Embed it
// to satisfy the interface while overriding only the callbacks you care
// about.
type NopListener struct{}

func (NopListener) OnConnectionState(bool)                 {}
func (NopListener) OnSpontaneousEvent(string, interface{}) {}
func (NopListener) OnStringCustomEvent(string, string)     {}
func (NopListener) OnBinaryEvent(string, []byte)           {}
