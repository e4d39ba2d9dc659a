package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Carrier origin validation belongs to the deployment's network
		// perimeter (allow-listed source IPs), not this handler.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wireMessage is the carrier's Media Streams JSON envelope. Every event
// type reuses the same envelope with only the relevant fields populated.
type wireMessage struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid,omitempty"`
	Media     *wireMedia  `json:"media,omitempty"`
	Start     *wireStart  `json:"start,omitempty"`
	Stop      *wireStop   `json:"stop,omitempty"`
	Mark      *wireMark   `json:"mark,omitempty"`
	DTMF      *wireDigits `json:"dtmf,omitempty"`
}

type wireMedia struct {
	Track   string `json:"track"`
	Chunk   string `json:"chunk"`
	Payload string `json:"payload"`
}

type wireStart struct {
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	StreamSid        string            `json:"streamSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type wireStop struct {
	CallSid string `json:"callSid"`
}

type wireMark struct {
	Name string `json:"name"`
}

type wireDigits struct {
	Digit string `json:"digit"`
}

// CarrierSession bridges one carrier WebSocket connection to ordered Go
// channels. It holds no call policy: it does not decide when to speak,
// interrupt, or hang up. That belongs to the Turn Orchestrator.
type CarrierSession struct {
	conn *websocket.Conn
	log  zerolog.Logger

	inbound chan InboundEvent

	writeMu   sync.Mutex
	streamSid string
	seq       uint64
}

// Upgrade upgrades an HTTP request to a carrier WebSocket connection and
// returns a running CarrierSession. The caller is responsible for reading
// Inbound() until it closes and for calling Close() when done.
func Upgrade(w http.ResponseWriter, r *http.Request, log zerolog.Logger) (*CarrierSession, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("telephony: failed to upgrade to websocket: %w", err)
	}

	s := &CarrierSession{
		conn:    conn,
		log:     log,
		inbound: make(chan InboundEvent, 256),
	}
	go s.readLoop()
	return s, nil
}

func (s *CarrierSession) readLoop() {
	defer close(s.inbound)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Msg("carrier websocket read error")
			}
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Error().Err(err).Msg("failed to parse carrier message")
			continue
		}

		switch msg.Event {
		case "start":
			if msg.Start == nil {
				continue
			}
			s.writeMu.Lock()
			s.streamSid = msg.Start.StreamSid
			s.writeMu.Unlock()
			s.emit(InboundEvent{
				Kind:             EventStart,
				CallSID:          msg.Start.CallSid,
				StreamSID:        msg.Start.StreamSid,
				AccountSID:       msg.Start.AccountSid,
				CustomParameters: msg.Start.CustomParameters,
			})

		case "media":
			if msg.Media == nil {
				continue
			}
			payload := msg.Media.Chunk
			if payload == "" {
				payload = msg.Media.Payload
			}
			data, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to decode carrier audio payload")
				continue
			}
			s.seq++
			s.emit(InboundEvent{
				Kind:  EventMedia,
				Frame: calltypes.AudioFrame{Seq: s.seq, Payload: data},
			})

		case "dtmf":
			if msg.DTMF == nil {
				continue
			}
			s.emit(InboundEvent{Kind: EventDTMF, Digit: msg.DTMF.Digit})

		case "stop":
			s.emit(InboundEvent{Kind: EventStop, CallSID: callSidOf(msg)})
			return

		case "connected", "mark":
			// Connection handshake and mark echoes carry no orchestration
			// state beyond what already moved the turn forward.

		default:
			s.log.Debug().Str("event", msg.Event).Msg("unhandled carrier event")
		}
	}
}

func callSidOf(msg wireMessage) string {
	if msg.Stop != nil {
		return msg.Stop.CallSid
	}
	return ""
}

func (s *CarrierSession) emit(evt InboundEvent) {
	select {
	case s.inbound <- evt:
	default:
		s.log.Warn().Str("kind", string(evt.Kind)).Msg("inbound channel full, dropping carrier event")
	}
}

// Inbound returns the ordered sequence of carrier events.
func (s *CarrierSession) Inbound() <-chan InboundEvent {
	return s.inbound
}

// SendAudio writes one mu-law frame to the carrier as a media message.
func (s *CarrierSession) SendAudio(frame calltypes.AudioFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(wireMessage{
		Event:     "media",
		StreamSid: s.streamSid,
		Media:     &wireMedia{Payload: base64.StdEncoding.EncodeToString(frame.Payload)},
	})
}

// SendMark asks the carrier to echo back name once prior audio has played.
func (s *CarrierSession) SendMark(name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(wireMessage{
		Event:     "mark",
		StreamSid: s.streamSid,
		Mark:      &wireMark{Name: name},
	})
}

// SendClear discards audio buffered at the carrier but not yet played.
func (s *CarrierSession) SendClear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(wireMessage{
		Event:     "clear",
		StreamSid: s.streamSid,
	})
}

// Close ends the carrier connection.
func (s *CarrierSession) Close() error {
	return s.conn.Close()
}
