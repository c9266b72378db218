package castv2

import "encoding/json"

// controlMessage marks every JSON control-message Go type, inbound or
// outbound, named in SPEC_FULL.md §3/§4.7.
type controlMessage interface {
	isControlMessage()
}

// requestMessage is implemented by every outbound message that carries a
// request id the Channel must allocate and round-trip (SPEC_FULL.md
// §4.6, send_request step 2).
type requestMessage interface {
	controlMessage
	GetRequestID() int64
	SetRequestID(id int64)
}

// requestHeader is embedded by every outbound request-shaped message.
type requestHeader struct {
	Type      string `json:"type"`
	RequestID int64  `json:"requestId,omitempty"`
}

func (h *requestHeader) GetRequestID() int64    { return h.RequestID }
func (h *requestHeader) SetRequestID(id int64)  { h.RequestID = id }
func (*requestHeader) isControlMessage()        {}

// responseHeader is embedded by every inbound response-shaped message,
// after the type -> responseType rewrite described in SPEC_FULL.md §4.4.
type responseHeader struct {
	ResponseType string `json:"responseType"`
	RequestID    int64  `json:"requestId,omitempty"`
}

func (*responseHeader) isControlMessage() {}

// --- connection namespace ---------------------------------------------

type connectMessage struct {
	requestHeader
}

func newConnectMessage() *connectMessage {
	return &connectMessage{requestHeader{Type: "CONNECT"}}
}

// closeMessage models the inbound CLOSE spontaneous event (decoded from
// a responseHeader after the type -> responseType rewrite). This package
// never sends an outbound CLOSE, so there is no request-shaped type for
// it.
type closeMessage struct {
	responseHeader
}

// --- heartbeat namespace -------------------------------------------------

type pingMessage struct {
	requestHeader
}

func newPingMessage() *pingMessage { return &pingMessage{requestHeader{Type: "PING"}} }

type pongMessage struct {
	requestHeader
}

func newPongMessage() *pongMessage { return &pongMessage{requestHeader{Type: "PONG"}} }

// --- receiver namespace --------------------------------------------------

// Volume is the receiver's current volume level and mute state.
type Volume struct {
	Level      *float64 `json:"level,omitempty"`
	Muted      *bool    `json:"muted,omitempty"`
	ControlType string  `json:"controlType,omitempty"`
}

// Namespace describes one namespace a running application supports.
type Namespace struct {
	Name string `json:"name"`
}

// Application describes one application running on the receiver.
type Application struct {
	AppID       string      `json:"appId"`
	DisplayName string      `json:"displayName,omitempty"`
	SessionID   string      `json:"sessionId"`
	StatusText  string      `json:"statusText,omitempty"`
	TransportID string      `json:"transportId"`
	Namespaces  []Namespace `json:"namespaces,omitempty"`
}

// ReceiverStatus is the `status` object carried by RECEIVER_STATUS.
type ReceiverStatus struct {
	Applications []Application `json:"applications,omitempty"`
	Volume       *Volume       `json:"volume,omitempty"`
}

type getStatusRequest struct {
	requestHeader
}

func newGetStatusRequest() *getStatusRequest {
	return &getStatusRequest{requestHeader{Type: "GET_STATUS"}}
}

type receiverStatusResponse struct {
	responseHeader
	Status ReceiverStatus `json:"status"`
}

type launchRequest struct {
	requestHeader
	AppID string `json:"appId"`
}

func newLaunchRequest(appID string) *launchRequest {
	return &launchRequest{requestHeader: requestHeader{Type: "LAUNCH"}, AppID: appID}
}

type launchErrorResponse struct {
	responseHeader
	Reason string `json:"reason,omitempty"`
}

type stopRequest struct {
	requestHeader
	SessionID string `json:"sessionId"`
}

func newStopRequest(sessionID string) *stopRequest {
	return &stopRequest{requestHeader: requestHeader{Type: "STOP"}, SessionID: sessionID}
}

type setVolumeRequest struct {
	requestHeader
	Volume Volume `json:"volume"`
}

func newSetVolumeRequest(level float64) *setVolumeRequest {
	l := level
	return &setVolumeRequest{requestHeader: requestHeader{Type: "SET_VOLUME"}, Volume: Volume{Level: &l}}
}

type getAppAvailabilityRequest struct {
	requestHeader
	AppID []string `json:"appId"`
}

func newGetAppAvailabilityRequest(appID string) *getAppAvailabilityRequest {
	return &getAppAvailabilityRequest{requestHeader: requestHeader{Type: "GET_APP_AVAILABILITY"}, AppID: []string{appID}}
}

// AppAvailable is the literal value that marks an app id as launchable in
// a GET_APP_AVAILABILITY response.
const AppAvailable = "APP_AVAILABLE"

type appAvailabilityResponse struct {
	responseHeader
	Availability map[string]string `json:"availability"`
}

type invalidRequestResponse struct {
	responseHeader
	Reason string `json:"reason,omitempty"`
}

// --- media namespace -------------------------------------------------

// MediaInformation describes the media item passed to LOAD.
type MediaInformation struct {
	ContentID   string                 `json:"contentId"`
	StreamType  string                 `json:"streamType,omitempty"`
	ContentType string                 `json:"contentType,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// MediaStatus is one entry of the `status` array carried by MEDIA_STATUS.
type MediaStatus struct {
	MediaSessionID int               `json:"mediaSessionId"`
	PlayerState    string            `json:"playerState"`
	CurrentTime    float64           `json:"currentTime"`
	Media          *MediaInformation `json:"media,omitempty"`
}

type loadRequest struct {
	requestHeader
	SessionID   string                 `json:"sessionId"`
	Media       MediaInformation       `json:"media"`
	CurrentTime float64                `json:"currentTime"`
	Autoplay    bool                   `json:"autoplay"`
	CustomData  map[string]interface{} `json:"customData,omitempty"`
}

func newLoadRequest(sessionID string, media MediaInformation, autoplay bool, customData map[string]interface{}) *loadRequest {
	return &loadRequest{
		requestHeader: requestHeader{Type: "LOAD"},
		SessionID:     sessionID,
		Media:         media,
		Autoplay:      autoplay,
		CustomData:    customData,
	}
}

type loadFailedResponse struct {
	responseHeader
	Reason string `json:"reason,omitempty"`
}

type playRequest struct {
	requestHeader
	MediaSessionID int    `json:"mediaSessionId"`
	SessionID      string `json:"sessionId"`
}

func newPlayRequest(sessionID string, mediaSessionID int) *playRequest {
	return &playRequest{requestHeader: requestHeader{Type: "PLAY"}, SessionID: sessionID, MediaSessionID: mediaSessionID}
}

type pauseRequest struct {
	requestHeader
	MediaSessionID int    `json:"mediaSessionId"`
	SessionID      string `json:"sessionId"`
}

func newPauseRequest(sessionID string, mediaSessionID int) *pauseRequest {
	return &pauseRequest{requestHeader: requestHeader{Type: "PAUSE"}, SessionID: sessionID, MediaSessionID: mediaSessionID}
}

type seekRequest struct {
	requestHeader
	CurrentTime    float64 `json:"currentTime"`
	MediaSessionID int     `json:"mediaSessionId"`
	SessionID      string  `json:"sessionId"`
}

func newSeekRequest(sessionID string, mediaSessionID int, currentTime float64) *seekRequest {
	return &seekRequest{
		requestHeader:  requestHeader{Type: "SEEK"},
		SessionID:      sessionID,
		MediaSessionID: mediaSessionID,
		CurrentTime:    currentTime,
	}
}

type mediaStatusResponse struct {
	responseHeader
	Status []MediaStatus `json:"status"`
}

// --- catch-all -------------------------------------------------------

// unknownResponse is delivered as a spontaneous event for any
// responseType this package does not recognize, per SPEC_FULL.md §4.7.
type unknownResponse struct {
	responseHeader
	Raw json.RawMessage `json:"-"`
}

// discriminatorHeader is used to peek at responseType/requestId before
// picking a concrete type to unmarshal into.
type discriminatorHeader struct {
	ResponseType string `json:"responseType"`
	RequestID    int64  `json:"requestId"`
}

// decodeControlMessage inspects the rewritten JSON's responseType and
// unmarshals into the matching concrete type. Unrecognized discriminators
// decode to unknownResponse rather than failing, since spontaneous events
// are never errors (SPEC_FULL.md §7).
func decodeControlMessage(raw json.RawMessage) (controlMessage, error) {
	var hdr discriminatorHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, err
	}

	var msg controlMessage
	switch hdr.ResponseType {
	case "PING":
		msg = &pingMessage{}
	case "PONG":
		msg = &pongMessage{}
	case "RECEIVER_STATUS":
		msg = &receiverStatusResponse{}
	case "LAUNCH_ERROR":
		msg = &launchErrorResponse{}
	case "INVALID_REQUEST":
		msg = &invalidRequestResponse{}
	case "GET_APP_AVAILABILITY":
		msg = &appAvailabilityResponse{}
	case "MEDIA_STATUS":
		msg = &mediaStatusResponse{}
	case "LOAD_FAILED":
		msg = &loadFailedResponse{}
	case "CLOSE":
		msg = &closeMessage{}
	default:
		return &unknownResponse{responseHeader: responseHeader{ResponseType: hdr.ResponseType, RequestID: hdr.RequestID}, Raw: raw}, nil
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// peekRequestID reports the rewritten JSON's requestId (0 if absent),
// per the dispatcher rule in SPEC_FULL.md §4.4.
func peekRequestID(raw json.RawMessage) int64 {
	var hdr discriminatorHeader
	_ = json.Unmarshal(raw, &hdr)
	return hdr.RequestID
}

// peekResponseType reports the rewritten JSON's responseType ("" if
// absent), used to tell a custom string event apart from a standard
// spontaneous one.
func peekResponseType(raw json.RawMessage) string {
	var hdr discriminatorHeader
	_ = json.Unmarshal(raw, &hdr)
	return hdr.ResponseType
}
