package modem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/assistnow/at"
)

// MQTT profile options for +UMQTT.
const (
	MQTTOptClientID = 0
	MQTTOptServer   = 2
	MQTTOptSecure   = 11
)

// Non-volatile operations for +UMQTTNV.
const (
	MQTTNVRestore = 0
	MQTTNVSet     = 1
	MQTTNVStore   = 2
)

const (
	mqttReadTimeout = 5 * time.Second
	// mqttReadPolls bounds the extra waits for a payload that itself
	// contained "OK\r\n".
	mqttReadPolls = 8
)

// MQTTMessage is one message read from the module's receive queue.
type MQTTMessage struct {
	QoS     int
	Topic   string
	Payload []byte
}

var errIncomplete = errors.New("incomplete read response")

func (m *Modem) MQTTNonVolatile(ctx context.Context, op int) error {
	return m.expectOK(ctx, fmt.Sprintf("%s%d", at.CmdMQTTNVM, op))
}

func (m *Modem) SetMQTTClientID(ctx context.Context, id string) error {
	return m.expectOK(ctx, fmt.Sprintf("%s%d,\"%s\"", at.CmdMQTTProfile, MQTTOptClientID, id))
}

func (m *Modem) SetMQTTServer(ctx context.Context, host string, port int) error {
	if host == "" || port <= 0 || port > 65535 {
		return &CommandError{Command: at.Escape + at.CmdMQTTProfile, Code: -1, Err: ErrUnexpectedParam}
	}
	return m.expectOK(ctx, fmt.Sprintf("%s%d,\"%s\",%d", at.CmdMQTTProfile, MQTTOptServer, host, port))
}

// SetMQTTSecure enables TLS with the given security profile, or disables it.
func (m *Modem) SetMQTTSecure(ctx context.Context, secure bool, profile int) error {
	if !secure {
		return m.expectOK(ctx, fmt.Sprintf("%s%d,0", at.CmdMQTTProfile, MQTTOptSecure))
	}
	return m.expectOK(ctx, fmt.Sprintf("%s%d,1,%d", at.CmdMQTTProfile, MQTTOptSecure, profile))
}

// ConnectMQTT logs in. Success of the command only means the request was
// accepted; the session is up when +UUMQTTC: 1,1 arrives.
func (m *Modem) ConnectMQTT(ctx context.Context) error {
	return m.expectOK(ctx, fmt.Sprintf("%s%d", at.CmdMQTTCommand, at.MQTTLogin))
}

func (m *Modem) DisconnectMQTT(ctx context.Context) error {
	return m.expectOK(ctx, fmt.Sprintf("%s%d", at.CmdMQTTCommand, at.MQTTLogout))
}

func (m *Modem) SubscribeMQTTTopic(ctx context.Context, qos int, topic string) error {
	if topic == "" || qos < 0 || qos > 2 {
		return &CommandError{Command: at.Escape + at.CmdMQTTCommand, Code: -1, Err: ErrUnexpectedParam}
	}
	return m.expectOK(ctx, fmt.Sprintf("%s%d,%d,\"%s\"", at.CmdMQTTCommand, at.MQTTSubscribe, qos, topic))
}

func (m *Modem) UnsubscribeMQTTTopic(ctx context.Context, topic string) error {
	if topic == "" {
		return &CommandError{Command: at.Escape + at.CmdMQTTCommand, Code: -1, Err: ErrUnexpectedParam}
	}
	return m.expectOK(ctx, fmt.Sprintf("%s%d,\"%s\"", at.CmdMQTTCommand, at.MQTTUnsubscribe, topic))
}

// ReadMQTT reads one pending message. Payloads longer than limit are
// rejected with ErrOutOfMemory; a limit of 0 disables the check.
func (m *Modem) ReadMQTT(ctx context.Context, limit int) (MQTTMessage, error) {
	text := fmt.Sprintf("%s%d,1", at.CmdMQTTCommand, at.MQTTRead)
	resp, err := m.SendCommandWithResponse(ctx, Command{Text: text, Timeout: mqttReadTimeout})
	if err != nil {
		return MQTTMessage{}, err
	}

	for polls := 0; ; polls++ {
		msg, err := parseMQTTRead(resp)
		switch {
		case err == nil:
			if limit > 0 && len(msg.Payload) > limit {
				return MQTTMessage{}, &CommandError{Command: at.Escape + text, Code: -1,
					Err: fmt.Errorf("%w: payload %d bytes exceeds %d", ErrOutOfMemory, len(msg.Payload), limit)}
			}
			return msg, nil
		case !errors.Is(err, errIncomplete) || polls >= mqttReadPolls:
			return MQTTMessage{}, &CommandError{Command: at.Escape + text, Code: -1, Err: fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)}
		}
		// The payload contained the OK terminator; keep reading.
		more, err := m.SendCommandWithResponse(ctx, Command{NoSend: true, Timeout: mqttReadTimeout})
		resp += more
		if err != nil {
			return MQTTMessage{}, err
		}
	}
}

// parseMQTTRead decodes
// +UMQTTC: 6,<qos>,<topic_len>,"<topic>",<msg_len>,"<msg>"
func parseMQTTRead(resp string) (MQTTMessage, error) {
	head := fmt.Sprintf("%s %d,", at.RespMQTT, at.MQTTRead)
	i := strings.Index(resp, head)
	if i < 0 {
		return MQTTMessage{}, fmt.Errorf("no %q line", head)
	}
	rest := resp[i+len(head):]

	next := func() (int, error) {
		j := strings.IndexByte(rest, ',')
		if j < 0 {
			return 0, errIncomplete
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest[:j]))
		rest = rest[j+1:]
		return n, err
	}
	quoted := func(n int) (string, error) {
		if len(rest) < n+2 {
			return "", errIncomplete
		}
		if rest[0] != '"' || rest[n+1] != '"' {
			return "", errors.New("bad quoting")
		}
		s := rest[1 : n+1]
		rest = rest[n+2:]
		return s, nil
	}

	var msg MQTTMessage
	var err error
	if msg.QoS, err = next(); err != nil {
		return MQTTMessage{}, err
	}
	topicLen, err := next()
	if err != nil {
		return MQTTMessage{}, err
	}
	if msg.Topic, err = quoted(topicLen); err != nil {
		return MQTTMessage{}, err
	}
	if !strings.HasPrefix(rest, ",") {
		return MQTTMessage{}, errIncomplete
	}
	rest = rest[1:]
	msgLen, err := next()
	if err != nil {
		return MQTTMessage{}, err
	}
	payload, err := quoted(msgLen)
	if err != nil {
		return MQTTMessage{}, err
	}
	msg.Payload = []byte(payload)
	return msg, nil
}

// MQTTProtocolError queries the last MQTT error and its sub code.
func (m *Modem) MQTTProtocolError(ctx context.Context) (code, sub int, err error) {
	v, err := m.query(ctx, at.CmdMQTTError, at.RespMQTTError)
	if err != nil {
		return 0, 0, err
	}
	fields := splitFields(v)
	if len(fields) < 2 {
		return 0, 0, &CommandError{Command: at.Escape + at.CmdMQTTError, Code: -1, Err: ErrUnexpectedResponse}
	}
	code, _ = strconv.Atoi(fields[0])
	sub, _ = strconv.Atoi(fields[1])
	return code, sub, nil
}
