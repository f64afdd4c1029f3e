package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/assistnow/at"
)

const (
	// activationTimeout covers +UPSDA and +CGACT, which wait for the network.
	activationTimeout = 3 * time.Minute
	// profileResetWait bounds the reboot after an MNO profile change.
	profileResetWait = 20 * time.Second
)

// SimStatus returns the +CPIN state, e.g. "READY" or "SIM PIN".
func (m *Modem) SimStatus(ctx context.Context) (string, error) {
	return m.query(ctx, at.CmdSimStatus, at.RespSimStatus)
}

func (m *Modem) SetSimPin(ctx context.Context, pin string) error {
	if pin == "" {
		return ErrSIMPinRequired
	}
	return m.expectOK(ctx, fmt.Sprintf("%s\"%s\"", at.CmdSimPin, pin))
}

// UnlockSIM returns the SIM state, submitting the configured PIN first when
// the SIM asks for one. Without a configured PIN it returns
// ErrSIMPinRequired.
func (m *Modem) UnlockSIM(ctx context.Context) (string, error) {
	code, err := m.SimStatus(ctx)
	if err != nil || code != at.SimPin {
		return code, err
	}
	if m.config.SimPIN == "" {
		return code, ErrSIMPinRequired
	}
	if err := m.SetSimPin(ctx, m.config.SimPIN); err != nil {
		return code, err
	}
	return m.SimStatus(ctx)
}

// SetSIMStateReporting sets the +UUSIMSTAT URC mode.
func (m *Modem) SetSIMStateReporting(ctx context.Context, mode int) error {
	return m.expectOK(ctx, fmt.Sprintf("%s%d", at.CmdSimStateURC, mode))
}

// EnableRegistrationURC turns on +CREG and +CEREG notifications with
// location information.
func (m *Modem) EnableRegistrationURC(ctx context.Context) error {
	if err := m.expectOK(ctx, at.CmdRegistration+"=2"); err != nil {
		return err
	}
	return m.expectOK(ctx, at.CmdEPSRegistered+"=2")
}

// Registration queries +CEREG (eps) or +CREG.
func (m *Modem) Registration(ctx context.Context, eps bool) (at.RegStatus, error) {
	cmd, prefix := at.CmdRegistration, at.UrcRegistration
	if eps {
		cmd, prefix = at.CmdEPSRegistered, at.UrcEPSRegistered
	}
	resp, err := m.exec(ctx, cmd+"?")
	if err != nil {
		return at.RegUnknown, err
	}
	lines, _ := at.Lines([]byte(resp))
	for _, line := range lines {
		// "+CEREG: <n>,<stat>[,...]"; notifications interleaved here have no <n>.
		v, ok := strings.CutPrefix(strings.TrimSpace(line), prefix)
		if !ok {
			continue
		}
		fields := splitFields(v)
		if len(fields) < 2 {
			continue
		}
		stat, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		return at.RegStatus(stat), nil
	}
	return at.RegUnknown, &CommandError{Command: at.Escape + cmd + "?", Code: -1, Err: ErrUnexpectedResponse}
}

// Operator returns the name of the registered operator.
func (m *Modem) Operator(ctx context.Context) (string, error) {
	v, err := m.query(ctx, at.CmdOperator, at.RespOperator)
	if err != nil {
		return "", err
	}
	fields := splitFields(v)
	if len(fields) < 3 {
		return "", nil
	}
	return fields[2], nil
}

// RSSI returns the raw +CSQ signal value (0..31, 99 unknown).
func (m *Modem) RSSI(ctx context.Context) (int, error) {
	v, err := m.query(ctx, at.CmdSignal, at.RespSignal)
	if err != nil {
		return 0, err
	}
	rssi, err := strconv.Atoi(splitFields(v)[0])
	if err != nil {
		return 0, &CommandError{Command: at.Escape + at.CmdSignal, Code: -1, Err: ErrUnexpectedResponse}
	}
	return rssi, nil
}

// Clock returns the network time from +CCLK.
func (m *Modem) Clock(ctx context.Context) (time.Time, error) {
	v, err := m.query(ctx, at.CmdClock, at.RespClock)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseClock(strings.Trim(v, `"`))
	if err != nil {
		return time.Time{}, &CommandError{Command: at.Escape + at.CmdClock, Code: -1, Err: fmt.Errorf("%w: %w", ErrUnexpectedResponse, err)}
	}
	return t, nil
}

// ParseClock parses "yy/MM/dd,hh:mm:ss±zz" where zz is in quarter hours.
func ParseClock(s string) (time.Time, error) {
	if len(s) < 17 {
		return time.Time{}, fmt.Errorf("clock %q too short", s)
	}
	base, err := time.Parse("06/01/02,15:04:05", s[:17])
	if err != nil {
		return time.Time{}, err
	}
	offset := 0
	if len(s) > 17 {
		q, err := strconv.Atoi(s[17:])
		if err != nil {
			return time.Time{}, fmt.Errorf("clock zone %q: %w", s[17:], err)
		}
		offset = q * 15 * 60
	}
	return time.Date(base.Year(), base.Month(), base.Day(), base.Hour(), base.Minute(), base.Second(), 0,
		time.FixedZone("", offset)), nil
}

// NetworkProfile returns the mobile network operator profile.
func (m *Modem) NetworkProfile(ctx context.Context) (int, error) {
	v, err := m.query(ctx, at.CmdMNOProfile+"?", at.RespMNOProfile)
	if err != nil {
		return 0, err
	}
	mno, err := strconv.Atoi(splitFields(v)[0])
	if err != nil {
		return 0, &CommandError{Command: at.Escape + at.CmdMNOProfile + "?", Code: -1, Err: ErrUnexpectedResponse}
	}
	return mno, nil
}

// SetNetworkProfile selects the MNO profile. The module must be in minimum
// functionality for the change and reboots afterwards, so nothing is done
// when the profile is already active.
func (m *Modem) SetNetworkProfile(ctx context.Context, mno int) error {
	if mno < 0 {
		return &CommandError{Command: at.Escape + at.CmdMNOProfile, Code: -1, Err: ErrUnexpectedParam}
	}
	if cur, err := m.NetworkProfile(ctx); err == nil && cur == mno {
		return nil
	}
	if err := m.expectOK(ctx, at.CmdFunctionality+"0"); err != nil {
		return err
	}
	if err := m.expectOK(ctx, fmt.Sprintf("%s=%d", at.CmdMNOProfile, mno)); err != nil {
		return err
	}
	if err := m.expectOK(ctx, at.CmdFunctionality+"16"); err != nil {
		return err
	}
	return m.waitForAT(ctx, profileResetWait)
}

// waitForAT probes until the module answers or limit passes.
func (m *Modem) waitForAT(ctx context.Context, limit time.Duration) error {
	deadline := m.engine.clock.Now().Add(limit)
	for {
		err := m.AT(ctx)
		if err == nil || ctx.Err() != nil || !m.engine.clock.Now().Before(deadline) {
			return err
		}
		m.Pause(500 * time.Millisecond)
	}
}

// PDPType is the packet data protocol of a context.
type PDPType int

const (
	PDPInvalid PDPType = iota - 1
	PDPIPv4
	PDPNonIP
	PDPIPv4v6
	PDPIPv6
)

func (p PDPType) String() string {
	switch p {
	case PDPIPv4:
		return "IP"
	case PDPNonIP:
		return "NONIP"
	case PDPIPv4v6:
		return "IPV4V6"
	case PDPIPv6:
		return "IPV6"
	default:
		return "INVALID"
	}
}

func ParsePDPType(s string) PDPType {
	switch strings.ToUpper(s) {
	case "IP":
		return PDPIPv4
	case "NONIP":
		return PDPNonIP
	case "IPV4V6":
		return PDPIPv4v6
	case "IPV6":
		return PDPIPv6
	default:
		return PDPInvalid
	}
}

// APN is one +CGDCONT context definition.
type APN struct {
	CID  int
	Type PDPType
	Name string
	IP   string
}

const maxCID = 7

// SetAPN defines context cid with the given APN.
func (m *Modem) SetAPN(ctx context.Context, cid int, apn string, pdp PDPType) error {
	if cid < 0 || cid > maxCID || pdp == PDPInvalid {
		return &CommandError{Command: at.Escape + at.CmdPDPContext, Code: -1, Err: ErrUnexpectedParam}
	}
	return m.expectOK(ctx, fmt.Sprintf("%s=%d,\"%s\",\"%s\"", at.CmdPDPContext, cid, pdp.String(), apn))
}

// GetAPN returns the definition of context cid. An undefined context
// yields an APN with an empty Name and PDPInvalid.
func (m *Modem) GetAPN(ctx context.Context, cid int) (APN, error) {
	if cid < 0 {
		return APN{}, &CommandError{Command: at.Escape + at.CmdPDPContext + "?", Code: -1, Err: ErrUnexpectedParam}
	}
	resp, err := m.exec(ctx, at.CmdPDPContext+"?")
	if err != nil {
		return APN{}, err
	}
	lines, _ := at.Lines([]byte(resp))
	for _, line := range lines {
		v, ok := strings.CutPrefix(strings.TrimSpace(line), at.RespPDPContext)
		if !ok {
			continue
		}
		fields := splitFields(v)
		if len(fields) < 3 {
			continue
		}
		if n, err := strconv.Atoi(fields[0]); err != nil || n != cid {
			continue
		}
		apn := APN{CID: cid, Type: ParsePDPType(fields[1]), Name: fields[2]}
		if len(fields) > 3 {
			apn.IP = fields[3]
		}
		return apn, nil
	}
	return APN{CID: cid, Type: PDPInvalid}, nil
}

// Packet switched data profile parameters for +UPSD.
const (
	PSDProtocol = 0
	PSDAPN      = 1
	PSDMapToCID = 100
)

// Packet switched data actions for +UPSDA.
const (
	PSDReset      = 0
	PSDStore      = 1
	PSDLoad       = 2
	PSDActivate   = 3
	PSDDeactivate = 4
)

func (m *Modem) SetPDPConfiguration(ctx context.Context, profile, param, value int) error {
	if profile < 0 || profile > 6 {
		return &CommandError{Command: at.Escape + at.CmdPSDConfig, Code: -1, Err: ErrUnexpectedParam}
	}
	return m.expectOK(ctx, fmt.Sprintf("%s%d,%d,%d", at.CmdPSDConfig, profile, param, value))
}

func (m *Modem) SetPDPConfigurationString(ctx context.Context, profile, param int, value string) error {
	if profile < 0 || profile > 6 {
		return &CommandError{Command: at.Escape + at.CmdPSDConfig, Code: -1, Err: ErrUnexpectedParam}
	}
	return m.expectOK(ctx, fmt.Sprintf("%s%d,%d,\"%s\"", at.CmdPSDConfig, profile, param, value))
}

// PerformPDPAction runs a +UPSDA action. The outcome of an activation is
// also reported asynchronously by +UUPSDA.
func (m *Modem) PerformPDPAction(ctx context.Context, profile, action int) error {
	if profile < 0 || profile > 6 {
		return &CommandError{Command: at.Escape + at.CmdPSDAction, Code: -1, Err: ErrUnexpectedParam}
	}
	_, err := m.SendCommandWithResponse(ctx, Command{
		Text:    fmt.Sprintf("%s%d,%d", at.CmdPSDAction, profile, action),
		Timeout: activationTimeout,
	})
	return err
}

// ActivatePDPContext activates (or deactivates) context cid, or all
// contexts when cid is negative.
func (m *Modem) ActivatePDPContext(ctx context.Context, active bool, cid int) error {
	if cid > maxCID {
		return &CommandError{Command: at.Escape + at.CmdPDPActivate, Code: -1, Err: ErrUnexpectedParam}
	}
	state := 0
	if active {
		state = 1
	}
	text := fmt.Sprintf("%s%d", at.CmdPDPActivate, state)
	if cid >= 0 {
		text = fmt.Sprintf("%s,%d", text, cid)
	}
	_, err := m.SendCommandWithResponse(ctx, Command{Text: text, Timeout: activationTimeout})
	return err
}

// Ping starts an ICMP echo; results arrive as +UUPING.
func (m *Modem) Ping(ctx context.Context, host string) error {
	if host == "" {
		return &CommandError{Command: at.Escape + at.CmdPing, Code: -1, Err: ErrUnexpectedParam}
	}
	return m.expectOK(ctx, fmt.Sprintf("%s\"%s\"", at.CmdPing, host))
}
