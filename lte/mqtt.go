package lte

import (
	"context"
	"fmt"

	"i4.energy/across/assistnow/at"
	"i4.energy/across/assistnow/modem"
)

// mqttQoS is used for every subscription.
const mqttQoS = 0

// connect provisions the credentials and logs in to the broker. The login
// URC moves the machine to MqttSession. A successful disconnect means the
// module still had a session, so the login is left to the next attempt.
func (m *Machine) connect(ctx context.Context) {
	id := m.ClientID()
	if id == "" {
		m.logger.Debug("no MQTT client id, staying online")
		return
	}
	if err := m.modem.DisconnectMQTT(ctx); err == nil {
		m.logger.Info("forced disconnect")
		return
	}

	cfg := m.config
	prof := cfg.SecurityProfile
	m.logger.Info("connect", "broker", fmt.Sprintf("%s:%d", cfg.Broker, cfg.BrokerPort), "client", id)

	secInt := func(op, v int) Step {
		return func(ctx context.Context) error { return m.modem.ConfigSecurityProfile(ctx, prof, op, v) }
	}
	secString := func(op int, v string) Step {
		return func(ctx context.Context) error { return m.modem.ConfigSecurityProfileString(ctx, prof, op, v) }
	}
	importObject := func(kind modem.SecurityObject, name string, data []byte) Step {
		return func(ctx context.Context) error { return m.modem.ImportSecurityObject(ctx, kind, name, data) }
	}

	seq := Sequence{Name: "setup and connect", Steps: []Step{
		importObject(modem.SecRootCA, RootCASlot, cfg.RootCA),
		importObject(modem.SecClientCert, ClientCertSlot, cfg.ClientCert),
		importObject(modem.SecClientKey, ClientKeySlot, cfg.ClientKey),
		Lenient(func(ctx context.Context) error {
			return m.modem.ResetSecurityProfile(ctx, prof)
		}, m.family() == lenaR8, m.logger, "not implemented on LENA-R8"),
		secInt(modem.SecProfCertValLevel, modem.CertValRootNoURL),
		secInt(modem.SecProfTLSVersion, modem.TLSVersion12),
		secInt(modem.SecProfCipherSuite, modem.CipherDefault),
		secString(modem.SecProfRootCA, RootCASlot),
		secString(modem.SecProfClientCert, ClientCertSlot),
		secString(modem.SecProfClientKey, ClientKeySlot),
		secString(modem.SecProfSNI, cfg.Broker),
		func(ctx context.Context) error { return m.modem.MQTTNonVolatile(ctx, modem.MQTTNVRestore) },
		func(ctx context.Context) error { return m.modem.SetMQTTClientID(ctx, id) },
		func(ctx context.Context) error { return m.modem.SetMQTTServer(ctx, cfg.Broker, cfg.BrokerPort) },
		func(ctx context.Context) error { return m.modem.SetMQTTSecure(ctx, true, prof) },
		m.modem.ConnectMQTT,
	}}
	if err := seq.Run(ctx); err != nil {
		m.logStepError(err)
	}

	m.mu.Lock()
	m.msgs = 0
	m.topics.Clear()
	m.mu.Unlock()
}

// stopMQTT logs out. It reports true when the module had no session, so
// no logout URC will follow.
func (m *Machine) stopMQTT(ctx context.Context) bool {
	if err := m.modem.DisconnectMQTT(ctx); err != nil {
		m.logger.Error("disconnect failed", "error", err)
		return true
	}
	m.logger.Info("disconnect")
	return false
}

// mqttTask issues at most one subscription change, or otherwise reads one
// pending message and injects it.
func (m *Machine) mqttTask(ctx context.Context) {
	m.mu.Lock()
	action := m.topics.Next(m.desired)
	idle := !m.topics.Busy() && m.msgs > 0
	m.mu.Unlock()

	switch action.Kind {
	case Subscribe:
		m.subscribe(ctx, action.Topic)
	case Unsubscribe:
		m.unsubscribe(ctx, action.Topic)
	default:
		if idle {
			m.read(ctx)
		}
	}
}

func (m *Machine) subscribe(ctx context.Context, topic string) {
	if err := m.modem.SubscribeMQTTTopic(ctx, mqttQoS, topic); err != nil {
		m.logger.Error("subscribe request failed", "topic", topic, "qos", mqttQoS, "error", err)
		return
	}
	m.logger.Debug("subscribe requested", "topic", topic, "qos", mqttQoS)
	m.mu.Lock()
	m.topics.Request(Action{Kind: Subscribe, Topic: topic})
	m.mu.Unlock()
}

func (m *Machine) unsubscribe(ctx context.Context, topic string) {
	if err := m.modem.UnsubscribeMQTTTopic(ctx, topic); err != nil {
		m.logger.Error("unsubscribe request failed", "topic", topic, "error", err)
		return
	}
	m.logger.Debug("unsubscribe requested", "topic", topic)
	m.mu.Lock()
	m.topics.Request(Action{Kind: Unsubscribe, Topic: topic})
	m.mu.Unlock()
}

func (m *Machine) read(ctx context.Context) {
	msg, err := m.modem.ReadMQTT(ctx, m.config.MaxMessageSize)
	if err != nil {
		m.logger.Error("read failed", "error", err)
		return
	}

	m.mu.Lock()
	// The module announces the remaining count with a URC.
	m.msgs = 0
	known := m.topics.Has(msg.Topic)
	m.mu.Unlock()

	m.logger.Info("topic read", "topic", msg.Topic, "bytes", len(msg.Payload))
	if !known {
		m.logger.Error("data from an unexpected topic", "topic", msg.Topic)
		m.unsubscribe(ctx, msg.Topic)
		return
	}
	m.inject(msg.Payload)
}

func (m *Machine) inject(payload []byte) {
	sink := m.sink()
	if sink == nil {
		m.logger.Error("no GNSS receiver for assistance data", "bytes", len(payload))
		return
	}

	res, err := m.injector.Inject(payload, sink)
	m.mu.Lock()
	m.stats.Frames += res.Frames
	m.stats.Bytes += res.Bytes
	m.stats.Rejected += res.Rejected
	m.stats.Failed += res.Failed
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("assistance data partially injected", "frames", res.Frames,
			"bytes", res.Bytes, "of", len(payload), "error", err)
		return
	}
	m.logger.Info("assistance data injected", "frames", res.Frames, "bytes", res.Bytes)
}

// onMQTT handles +UUMQTTC. For reads the result is the number of unread
// messages; for every other command 0 is a failure and 1 success.
func (m *Machine) onMQTT(ev at.MQTTResult) {
	m.logger.Debug("MQTT result", "command", ev.Command, "result", ev.Result)
	if ev.Command != at.MQTTRead && ev.Result == 0 {
		m.reportMQTTError(ev.Command)
		m.mu.Lock()
		defer m.mu.Unlock()
		switch ev.Command {
		case at.MQTTSubscribe:
			if topic := m.topics.Abandon(Subscribe); topic != "" {
				m.logger.Warn("subscribe rejected", "topic", topic)
			}
		case at.MQTTUnsubscribe:
			if topic := m.topics.Abandon(Unsubscribe); topic != "" {
				m.logger.Warn("unsubscribe rejected", "topic", topic)
			}
		}
		return
	}

	delay := m.config.MQTTCommandDelay
	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.Command {
	case at.MQTTLogin:
		if m.state != Online {
			m.logger.Error("login in wrong state", "state", m.state)
			return
		}
		m.logger.Info("login")
		m.setStateLocked(MqttSession, delay)
	case at.MQTTLogout:
		if m.state != MqttSession && m.state != Online {
			m.logger.Error("logout in wrong state", "state", m.state)
			return
		}
		m.logger.Info("logout")
		m.msgs = 0
		m.topics.Clear()
		m.setStateLocked(Online, delay)
	case at.MQTTSubscribe:
		if m.state != MqttSession {
			m.logger.Error("subscribe in wrong state", "state", m.state)
			return
		}
		topic, err := m.topics.Subscribed()
		if err != nil {
			m.logger.Error("subscribe result without request", "result", ev.Result, "error", err)
			return
		}
		m.logger.Info("subscribed", "topic", topic, "result", ev.Result)
		m.setStateLocked(MqttSession, delay)
	case at.MQTTUnsubscribe:
		if m.state != MqttSession {
			m.logger.Error("unsubscribe in wrong state", "state", m.state)
			return
		}
		topic, err := m.topics.Unsubscribed()
		if err != nil {
			m.logger.Error("unsubscribe result not matching", "topic", topic, "result", ev.Result, "error", err)
			return
		}
		m.logger.Info("unsubscribed", "topic", topic, "result", ev.Result)
		m.setStateLocked(MqttSession, delay)
	case at.MQTTRead:
		if m.state != MqttSession {
			m.logger.Error("read in wrong state", "state", m.state)
			return
		}
		m.logger.Debug("messages pending", "count", ev.Result)
		m.msgs = ev.Result
		m.setStateLocked(MqttSession, delay)
	}
}

// reportMQTTError queries and logs the module's last MQTT error. It runs
// inside backlog processing, which has no caller context.
func (m *Machine) reportMQTTError(command int) {
	code, sub, err := m.modem.MQTTProtocolError(context.Background())
	if err != nil {
		m.logger.Error("MQTT command failed, error query failed", "command", command, "error", err)
		return
	}
	m.logger.Error("MQTT command failed", "command", command, "code", code, "sub", sub)
}
