package modem

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"i4.energy/across/assistnow/at"
)

// maxUBXFrame is the longest frame +UGUBX accepts.
const maxUBXFrame = 1024

// SendUBX passes one UBX frame to the GNSS receiver inside the module
// (SARA-R510M8S) as a hex string.
func (m *Modem) SendUBX(ctx context.Context, frame []byte) error {
	if len(frame) == 0 || len(frame) > maxUBXFrame {
		return &CommandError{Command: at.Escape + at.CmdGNSSUBX, Code: -1, Err: ErrUnexpectedParam}
	}
	return m.expectOK(ctx, fmt.Sprintf("%s\"%s\"", at.CmdGNSSUBX, strings.ToUpper(hex.EncodeToString(frame))))
}

// HasInternalGNSS reports whether the detected model carries a GNSS
// receiver reachable through +UGUBX.
func (m *Modem) HasInternalGNSS() bool {
	return strings.HasPrefix(m.Model(), "SARA-R510M8S")
}

// UBXWriter adapts SendUBX to io.Writer so the module can serve as a GNSS
// sink. Each Write must carry exactly one frame.
type UBXWriter struct {
	Modem *Modem
}

func (w UBXWriter) Write(frame []byte) (int, error) {
	if err := w.Modem.SendUBX(context.Background(), frame); err != nil {
		return 0, err
	}
	return len(frame), nil
}
