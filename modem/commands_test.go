package modem_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"i4.energy/across/assistnow/at"
	"i4.energy/across/assistnow/modem"
)

func TestNetworkQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("SIM status", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+CPIN?", "\r\n+CPIN: READY\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		got, err := m.SimStatus(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != at.SimReady {
			t.Errorf("expected %q, got %q", at.SimReady, got)
		}
	})

	t.Run("SIM PIN is required to unlock", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+CPIN?", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		if err := m.SetSimPin(ctx, ""); err != modem.ErrSIMPinRequired {
			t.Errorf("expected ErrSIMPinRequired, got: %v", err)
		}
		code, err := m.UnlockSIM(ctx)
		if err != modem.ErrSIMPinRequired || code != at.SimPin {
			t.Errorf("expected ErrSIMPinRequired with %q, got %q, %v", at.SimPin, code, err)
		}
	})

	t.Run("Configured PIN unlocks the SIM", func(t *testing.T) {
		tr := modem.NewScriptedTransport().
			Reply("AT+CPIN?", "\r\n+CPIN: READY\r\n\r\nOK\r\n").
			ReplyOnce("AT+CPIN?", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n").
			Reply("AT+CPIN=", "\r\nOK\r\n")
		cfg, err := modem.NewConfigBuilder().
			WithDialer(modem.ScriptedDialer{Transport: tr}).
			WithSimPIN("1234").
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		m, err := modem.New(ctx, cfg)
		if err != nil {
			t.Fatalf("unexpected error from New(): %v", err)
		}
		defer m.Close()

		code, err := m.UnlockSIM(ctx)
		if err != nil || code != at.SimReady {
			t.Fatalf("expected READY, got %q, %v", code, err)
		}
		if tr.Count("AT+CPIN=\"1234\"") != 1 {
			t.Errorf("expected the PIN to be sent once, writes %q", tr.Writes())
		}
	})

	t.Run("EPS registration with location", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+CEREG?", "\r\n+CEREG: 2,5,\"1A2B\",\"01ABCDEF\",7\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		got, err := m.Registration(ctx, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != at.RegRoaming {
			t.Errorf("expected %v, got %v", at.RegRoaming, got)
		}
	})

	t.Run("Registration skips interleaved notifications", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+CREG?", "\r\n+CREG: 2\r\n+CREG: 0,1\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		got, err := m.Registration(ctx, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != at.RegHome {
			t.Errorf("expected %v, got %v", at.RegHome, got)
		}
	})

	t.Run("Operator and signal", func(t *testing.T) {
		tr := modem.NewScriptedTransport().
			Reply("AT+COPS?", "\r\n+COPS: 0,0,\"Swisscom\",7\r\n\r\nOK\r\n").
			Reply("AT+CSQ", "\r\n+CSQ: 17,99\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		op, err := m.Operator(ctx)
		if err != nil || op != "Swisscom" {
			t.Errorf("expected Swisscom, got %q (%v)", op, err)
		}
		rssi, err := m.RSSI(ctx)
		if err != nil || rssi != 17 {
			t.Errorf("expected 17, got %d (%v)", rssi, err)
		}
	})

	t.Run("Network clock", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+CCLK?", "\r\n+CCLK: \"24/03/15,12:30:45+04\"\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		got, err := m.Clock(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := time.Date(2024, 3, 15, 11, 30, 45, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("MNO profile already active is left alone", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+UMNOPROF?", "\r\n+UMNOPROF: 100\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		if err := m.SetNetworkProfile(ctx, 100); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr.Count("AT+CFUN") != 0 {
			t.Errorf("expected no functionality change, writes %q", tr.Writes())
		}
	})
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		offset int
	}{
		{"24/03/15,12:30:45+04", time.Date(2024, 3, 15, 11, 30, 45, 0, time.UTC), 3600},
		{"23/12/31,23:59:59-08", time.Date(2024, 1, 1, 1, 59, 59, 0, time.UTC), -7200},
		{"25/06/01,00:00:00", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := modem.ParseClock(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if _, off := got.Zone(); off != tt.offset {
				t.Errorf("expected offset %d, got %d", tt.offset, off)
			}
		})
	}

	if _, err := modem.ParseClock("24/03/15"); err == nil {
		t.Error("expected error for a short clock string")
	}
}

func TestPacketData(t *testing.T) {
	ctx := context.Background()

	t.Run("Defined context is returned", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+CGDCONT?",
			"\r\n+CGDCONT: 1,\"IP\",\"internet\",\"10.0.0.2\",0,0\r\n+CGDCONT: 2,\"NONIP\",\"iot\",\"\",0,0\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		got, err := m.GetAPN(ctx, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := modem.APN{CID: 1, Type: modem.PDPIPv4, Name: "internet", IP: "10.0.0.2"}
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}

		got, err = m.GetAPN(ctx, 4)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Type != modem.PDPInvalid || got.Name != "" {
			t.Errorf("expected undefined context, got %+v", got)
		}
	})

	t.Run("SetAPN validates its arguments", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+CGDCONT=", "\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		if err := m.SetAPN(ctx, 9, "internet", modem.PDPIPv4); modem.StatusOf(err) != modem.UnexpectedParam {
			t.Errorf("expected UnexpectedParam, got: %v", err)
		}
		if err := m.SetAPN(ctx, 1, "internet", modem.PDPInvalid); modem.StatusOf(err) != modem.UnexpectedParam {
			t.Errorf("expected UnexpectedParam, got: %v", err)
		}
		if err := m.SetAPN(ctx, 1, "internet", modem.PDPIPv4); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		writes := tr.Writes()
		if len(writes) != 1 || writes[0] != "AT+CGDCONT=1,\"IP\",\"internet\"\r" {
			t.Errorf("unexpected writes %q", writes)
		}
	})

	t.Run("PSD profile commands", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("", "\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		if err := m.SetPDPConfiguration(ctx, 0, modem.PSDMapToCID, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := m.ActivatePDPContext(ctx, true, -1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := m.ActivatePDPContext(ctx, false, 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := m.PerformPDPAction(ctx, 7, modem.PSDActivate); modem.StatusOf(err) != modem.UnexpectedParam {
			t.Errorf("expected UnexpectedParam, got: %v", err)
		}

		want := []string{"AT+UPSD=0,100,1\r", "AT+CGACT=1\r", "AT+CGACT=0,2\r"}
		got := tr.Writes()
		if len(got) != len(want) {
			t.Fatalf("expected %q, got %q", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("write %d: expected %q, got %q", i, want[i], got[i])
			}
		}
	})
}

func TestImportSecurityObject(t *testing.T) {
	ctx := context.Background()
	cert := []byte("-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n")

	t.Run("Header, prompt and raw data", func(t *testing.T) {
		tr := modem.NewScriptedTransport().
			Reply("AT+USECMNG=", "\r\n>").
			Reply("-----BEGIN", "\r\n+USECMNG: 0,0,\"aws-rootCA\",\"7f2b\"\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		if err := m.ImportSecurityObject(ctx, modem.SecRootCA, "aws-rootCA", cert); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		writes := tr.Writes()
		header := fmt.Sprintf("AT+USECMNG=0,0,\"aws-rootCA\",%d\r", len(cert))
		if len(writes) != 2 || writes[0] != header || writes[1] != string(cert) {
			t.Errorf("unexpected writes %q", writes)
		}
	})

	t.Run("No prompt means no data", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+USECMNG=", "\r\n+CME ERROR: 4\r\n")
		m := newScriptedModem(t, tr)

		err := m.ImportSecurityObject(ctx, modem.SecClientKey, "pp-key", cert)
		if modem.StatusOf(err) != modem.ProtocolError || modem.ErrorCode(err) != 4 {
			t.Errorf("expected protocol error 4, got: %v", err)
		}
		if len(tr.Writes()) != 1 {
			t.Errorf("data must not follow a refused header, writes %q", tr.Writes())
		}
	})

	t.Run("Empty object is rejected", func(t *testing.T) {
		m := newScriptedModem(t, modem.NewScriptedTransport())
		err := m.ImportSecurityObject(ctx, modem.SecClientCert, "pp-cert", nil)
		if modem.StatusOf(err) != modem.UnexpectedParam {
			t.Errorf("expected UnexpectedParam, got: %v", err)
		}
	})
}

func TestMQTTCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("Profile and session commands", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("", "\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		steps := []func() error{
			func() error { return m.MQTTNonVolatile(ctx, modem.MQTTNVRestore) },
			func() error { return m.SetMQTTClientID(ctx, "device-1") },
			func() error { return m.SetMQTTServer(ctx, "pp.services.u-blox.com", 8883) },
			func() error { return m.SetMQTTSecure(ctx, true, 0) },
			func() error { return m.ConnectMQTT(ctx) },
			func() error { return m.SubscribeMQTTTopic(ctx, 0, "/pp/ubx/mga") },
			func() error { return m.UnsubscribeMQTTTopic(ctx, "/pp/ubx/mga") },
			func() error { return m.DisconnectMQTT(ctx) },
		}
		for i, step := range steps {
			if err := step(); err != nil {
				t.Fatalf("step %d: unexpected error: %v", i+1, err)
			}
		}

		want := []string{
			"AT+UMQTTNV=0\r",
			"AT+UMQTT=0,\"device-1\"\r",
			"AT+UMQTT=2,\"pp.services.u-blox.com\",8883\r",
			"AT+UMQTT=11,1,0\r",
			"AT+UMQTTC=1\r",
			"AT+UMQTTC=4,0,\"/pp/ubx/mga\"\r",
			"AT+UMQTTC=5,\"/pp/ubx/mga\"\r",
			"AT+UMQTTC=0\r",
		}
		got := tr.Writes()
		if len(got) != len(want) {
			t.Fatalf("expected %q, got %q", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("write %d: expected %q, got %q", i, want[i], got[i])
			}
		}
	})

	t.Run("Read a message", func(t *testing.T) {
		payload := []byte{0xB5, 0x62, 0x13, 0x40}
		tr := modem.NewScriptedTransport().Reply("AT+UMQTTC=6",
			"\r\n+UMQTTC: 6,0,11,\"/pp/ubx/mga\",4,\""+string(payload)+"\"\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		msg, err := m.ReadMQTT(ctx, 9*1024)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Topic != "/pp/ubx/mga" || msg.QoS != 0 || !bytes.Equal(msg.Payload, payload) {
			t.Errorf("unexpected message %+v", msg)
		}
	})

	t.Run("Payload containing the OK terminator", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+UMQTTC=6",
			"\r\n+UMQTTC: 6,1,11,\"/pp/ubx/mga\",6,\"abOK\r\n\"\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		msg, err := m.ReadMQTT(ctx, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(msg.Payload) != "abOK\r\n" || msg.QoS != 1 {
			t.Errorf("unexpected message %+v", msg)
		}
	})

	t.Run("Oversized payload", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+UMQTTC=6",
			"\r\n+UMQTTC: 6,0,1,\"t\",8,\"12345678\"\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		_, err := m.ReadMQTT(ctx, 4)
		if modem.StatusOf(err) != modem.OutOfMemory {
			t.Errorf("expected OutOfMemory, got: %v", err)
		}
	})

	t.Run("Protocol error query", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+UMQTTER", "\r\n+UMQTTER: 1,13\r\n\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		code, sub, err := m.MQTTProtocolError(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if code != 1 || sub != 13 {
			t.Errorf("expected 1,13, got %d,%d", code, sub)
		}
	})

	t.Run("Invalid topic is rejected locally", func(t *testing.T) {
		tr := modem.NewScriptedTransport()
		m := newScriptedModem(t, tr)

		if err := m.SubscribeMQTTTopic(ctx, 3, "/pp/ubx/mga"); modem.StatusOf(err) != modem.UnexpectedParam {
			t.Errorf("expected UnexpectedParam, got: %v", err)
		}
		if err := m.UnsubscribeMQTTTopic(ctx, ""); modem.StatusOf(err) != modem.UnexpectedParam {
			t.Errorf("expected UnexpectedParam, got: %v", err)
		}
		if len(tr.Writes()) != 0 {
			t.Errorf("unexpected writes %q", tr.Writes())
		}
	})
}

func TestSendUBX(t *testing.T) {
	ctx := context.Background()

	t.Run("Frame is sent as upper case hex", func(t *testing.T) {
		tr := modem.NewScriptedTransport().Reply("AT+UGUBX=", "\r\nOK\r\n")
		m := newScriptedModem(t, tr)

		w := modem.UBXWriter{Modem: m}
		n, err := w.Write([]byte{0xb5, 0x62, 0x13, 0x40, 0x00, 0x00, 0x53, 0xea})
		if err != nil || n != 8 {
			t.Fatalf("unexpected write result %d, %v", n, err)
		}
		if got := tr.Writes(); len(got) != 1 || got[0] != "AT+UGUBX=\"B5621340000053EA\"\r" {
			t.Errorf("unexpected writes %q", got)
		}
	})

	t.Run("Oversized frame is rejected", func(t *testing.T) {
		m := newScriptedModem(t, modem.NewScriptedTransport())
		err := m.SendUBX(ctx, make([]byte, 1025))
		if modem.StatusOf(err) != modem.UnexpectedParam {
			t.Errorf("expected UnexpectedParam, got: %v", err)
		}
	})
}
