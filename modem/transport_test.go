package modem

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "modem: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyUSB0",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "modem: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_WithMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
		Mode: &serial.Mode{
			BaudRate: 115200,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		},
	}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
}

func TestSerialDialer_Dial_DefaultMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
		BaudRate: 9600,
	}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
}

// Test the interface compliance
func TestTransportInterface(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := NewMockTransport(ctrl)

	var _ Transport = mockTransport
	var _ Transport = (*serialTransport)(nil)
	var _ Transport = (*ScriptedTransport)(nil)

	data := []byte("AT\r")
	mockTransport.EXPECT().Write(data).Return(len(data), nil)
	mockTransport.EXPECT().Buffered().Return(6)
	mockTransport.EXPECT().Read(gomock.Any()).Return(6, nil)
	mockTransport.EXPECT().SetBaudRate(9600).Return(nil)
	mockTransport.EXPECT().SetFlowControl(true).Return(nil)
	mockTransport.EXPECT().Close().Return(nil)

	n, err := mockTransport.Write(data)
	if err != nil {
		t.Errorf("unexpected write error: %v", err)
	}
	if n != len(data) {
		t.Errorf("expected %d bytes written, got %d", len(data), n)
	}

	if got := mockTransport.Buffered(); got != 6 {
		t.Errorf("expected 6 bytes buffered, got %d", got)
	}

	buf := make([]byte, 10)
	n, err = mockTransport.Read(buf)
	if err != nil {
		t.Errorf("unexpected read error: %v", err)
	}
	if n != 6 {
		t.Errorf("expected 6 bytes read, got %d", n)
	}

	if err := mockTransport.SetBaudRate(9600); err != nil {
		t.Errorf("unexpected baud error: %v", err)
	}
	if err := mockTransport.SetFlowControl(true); err != nil {
		t.Errorf("unexpected flow control error: %v", err)
	}
	if err := mockTransport.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestDialerInterface(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDialer := NewMockDialer(ctrl)
	mockTransport := NewMockTransport(ctrl)

	var _ Dialer = mockDialer
	var _ Dialer = SerialDialer{}
	var _ Dialer = ScriptedDialer{}

	ctx := context.Background()
	mockDialer.EXPECT().Dial(ctx).Return(mockTransport, nil)

	transport, err := mockDialer.Dial(ctx)
	if err != nil {
		t.Errorf("unexpected dial error: %v", err)
	}
	if transport != mockTransport {
		t.Error("expected mock transport to be returned")
	}
}

func TestDialerInterface_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDialer := NewMockDialer(ctrl)
	dialError := errors.New("dial failed")

	ctx := context.Background()
	mockDialer.EXPECT().Dial(ctx).Return(nil, dialError)

	transport, err := mockDialer.Dial(ctx)
	if err != dialError {
		t.Errorf("expected dial error, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport on error")
	}
}

func TestScriptedTransport(t *testing.T) {
	t.Run("Latest matching rule answers", func(t *testing.T) {
		tr := NewScriptedTransport().
			Reply("", "OK\r\n").
			Reply("AT+CPIN?", "+CPIN: READY\r\nOK\r\n")

		tr.Write([]byte("AT+CPIN?\r"))
		buf := make([]byte, 64)
		n, _ := tr.Read(buf)
		if got := string(buf[:n]); got != "+CPIN: READY\r\nOK\r\n" {
			t.Errorf("unexpected reply %q", got)
		}
	})

	t.Run("One-shot rule is consumed", func(t *testing.T) {
		tr := NewScriptedTransport().
			Reply("AT", "OK\r\n").
			ReplyOnce("AT", "ERROR\r\n")

		tr.Write([]byte("AT\r"))
		tr.Write([]byte("AT\r"))
		buf := make([]byte, 64)
		n, _ := tr.Read(buf)
		if got := string(buf[:n]); got != "ERROR\r\nOK\r\n" {
			t.Errorf("unexpected replies %q", got)
		}
		if tr.Count("AT") != 2 {
			t.Errorf("expected 2 writes, got %d", tr.Count("AT"))
		}
	})

	t.Run("Read never blocks on an empty queue", func(t *testing.T) {
		tr := NewScriptedTransport()
		n, err := tr.Read(make([]byte, 8))
		if n != 0 || err != nil {
			t.Errorf("expected 0, nil; got %d, %v", n, err)
		}
	})
}
