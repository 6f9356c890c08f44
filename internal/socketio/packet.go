package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Engine.IO packet types.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message.
const (
	sioConnect    = '0'
	sioDisconnect = '1'
	sioEvent      = '2'
	sioAck        = '3'
	sioError      = '4'
)

var errEmptyPacket = errors.New("empty packet")

// packet is a decoded Engine.IO frame. The Socket.IO fields are set only for
// engineMessage frames.
type packet struct {
	engineType byte
	sioType    byte
	namespace  string
	ackID      string
	data       string
}

// openInfo is the payload of the Engine.IO open packet.
type openInfo struct {
	SID          string
	PingInterval int64 // milliseconds
	PingTimeout  int64 // milliseconds
}

func parsePacket(msg string) (packet, error) {
	if msg == "" {
		return packet{}, errEmptyPacket
	}
	p := packet{engineType: msg[0]}
	rest := msg[1:]
	if p.engineType != engineMessage {
		p.data = rest
		return p, nil
	}
	if rest == "" {
		return p, fmt.Errorf("message packet without socket.io type")
	}
	p.sioType = rest[0]
	rest = rest[1:]

	p.namespace = "/"
	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest, ','); i >= 0 {
			p.namespace = rest[:i]
			rest = rest[i+1:]
		} else {
			p.namespace = rest
			rest = ""
		}
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	p.ackID = rest[:i]
	p.data = rest[i:]
	return p, nil
}

// event returns the event name and its arguments of a Socket.IO event packet.
func (p packet) event() (string, []json.RawMessage, error) {
	if !gjson.Valid(p.data) {
		return "", nil, fmt.Errorf("invalid event payload %q", p.data)
	}
	parsed := gjson.Parse(p.data)
	if !parsed.IsArray() {
		return "", nil, fmt.Errorf("event payload is not an array: %q", p.data)
	}
	items := parsed.Array()
	if len(items) == 0 || items[0].Type != gjson.String {
		return "", nil, fmt.Errorf("event payload has no name: %q", p.data)
	}
	args := make([]json.RawMessage, 0, len(items)-1)
	for _, item := range items[1:] {
		args = append(args, json.RawMessage(item.Raw))
	}
	return items[0].String(), args, nil
}

func parseOpen(data string) (openInfo, error) {
	if !gjson.Valid(data) {
		return openInfo{}, fmt.Errorf("invalid open payload %q", data)
	}
	r := gjson.Parse(data)
	info := openInfo{
		SID:          r.Get("sid").String(),
		PingInterval: r.Get("pingInterval").Int(),
		PingTimeout:  r.Get("pingTimeout").Int(),
	}
	if info.SID == "" {
		return openInfo{}, fmt.Errorf("open payload without sid: %q", data)
	}
	return info, nil
}

func encodeConnect(namespace string) string {
	if namespace == "" || namespace == "/" {
		return string([]byte{engineMessage, sioConnect})
	}
	return string([]byte{engineMessage, sioConnect}) + namespace + ","
}

func encodeEvent(namespace, event string, args ...any) (string, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)
	b, err := jsonAPI.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %q event: %w", event, err)
	}
	prefix := string([]byte{engineMessage, sioEvent})
	if namespace != "" && namespace != "/" {
		prefix += namespace + ","
	}
	return prefix + string(b), nil
}
