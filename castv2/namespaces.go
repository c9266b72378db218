package castv2

// Namespace URNs used by the core, per SPEC_FULL.md §6.
const (
	NamespaceDeviceAuth  = "urn:x-cast:com.google.cast.tp.deviceauth"
	NamespaceConnection  = "urn:x-cast:com.google.cast.tp.connection"
	NamespaceHeartbeat   = "urn:x-cast:com.google.cast.tp.heartbeat"
	NamespaceReceiver    = "urn:x-cast:com.google.cast.receiver"
	NamespaceMedia       = "urn:x-cast:com.google.cast.media"
)
