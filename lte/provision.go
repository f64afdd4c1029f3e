package lte

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/assistnow/at"
	"i4.energy/across/assistnow/modem"
)

const (
	simPollInterval = 100 * time.Millisecond
	// numCIDs is the number of PDP context identifiers scanned on SARA-R5.
	numCIDs = 11
)

// detect switches the module on if needed, runs the modem init and
// identifies the model. It then waits for the SIM to answer.
func (m *Machine) detect(ctx context.Context) bool {
	if !m.moduleOn() {
		m.logger.Info("LTE power on")
		if err := m.modem.PowerOn(ctx); err != nil {
			m.logger.Error("power key pulse failed", "error", err)
			return false
		}
		m.modem.Pause(m.config.PowerOnWait)
	}

	if err := m.modem.Begin(ctx); err != nil {
		m.logger.Warn("LARA-R6/SARA-R5/LENA-R8 not detected, check wiring", "error", err)
		return false
	}
	model, err := m.modem.ModelID(ctx)
	if err != nil {
		m.logger.Error("read model failed", "error", err)
		return false
	}
	firmware := m.optional(ctx, "firmware", m.modem.FirmwareVersion)
	manufacturer := m.optional(ctx, "manufacturer", m.modem.ManufacturerID)
	m.logger.Info("config", "manufacturer", manufacturer, "model", model, "firmware", firmware)
	if msg := firmwareWarning(model, firmware); msg != "" {
		m.logger.Error(msg, "model", model, "firmware", firmware)
	}

	m.mu.Lock()
	m.model = model
	m.firmware = firmware
	m.mu.Unlock()

	m.waitSIM(ctx)
	return true
}

// optional runs an informational query and logs its failure.
func (m *Machine) optional(ctx context.Context, what string, query func(context.Context) (string, error)) string {
	v, err := query(ctx)
	if err != nil {
		m.logger.Debug("query failed", "what", what, "error", err)
	}
	return v
}

// firmwareWarning returns a message for firmware versions with known
// limitations, or an empty string.
func firmwareWarning(model, version string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(version), 64)
	if err != nil {
		return ""
	}
	switch {
	case strings.HasPrefix(model, "LARA-R6") && v < 0.13:
		return "LARA-R6 firmware has MQTT limitations, please update firmware"
	case strings.HasPrefix(model, "LENA-R8") && v < 2.00:
		return "LENA-R8 firmware has limitations, please update firmware"
	}
	return ""
}

// waitSIM polls the SIM status while the module still answers with an
// error, for at most SimReadyWait.
func (m *Machine) waitSIM(ctx context.Context) {
	var err error
	for i := 0; i < int(m.config.SimReadyWait/simPollInterval); i++ {
		_, err = m.modem.SimStatus(ctx)
		if modem.StatusOf(err) != modem.ProtocolError || ctx.Err() != nil {
			break
		}
		m.modem.Pause(simPollInterval)
	}
	if modem.StatusOf(err) == modem.ProtocolError {
		m.logger.Error("SIM card not found", "code", modem.ErrorCode(err), "error", err)
	}
}

// initSIM unlocks the SIM and prepares registration. It fails while the
// SIM is not ready.
func (m *Machine) initSIM(ctx context.Context) bool {
	code, err := m.modem.UnlockSIM(ctx)
	switch {
	case errors.Is(err, modem.ErrSIMPinRequired):
		m.logger.Warn("SIM card requires a PIN, none configured")
		return false
	case err != nil:
		m.logger.Error("SIM card initialisation failed", "status", modem.StatusOf(err).String(), "error", err)
		return false
	case code != at.SimReady:
		m.logger.Warn("SIM card status", "code", code)
		return false
	}

	m.logger.Info("SIM card status", "code", code, "ccid", m.optional(ctx, "ccid", m.modem.CCID))
	m.logger.Info("identity",
		"imei", m.optional(ctx, "imei", m.modem.IMEI),
		"imsi", m.optional(ctx, "imsi", m.modem.IMSI),
		"subscriber", m.optional(ctx, "subscriber", m.modem.SubscriberNumber))

	if m.family() != lenaR8 && m.config.MNOProfile >= 0 {
		if err := m.modem.SetNetworkProfile(ctx, m.config.MNOProfile); err != nil {
			m.logger.Error("setting network profile failed", "mno", m.config.MNOProfile, "error", err)
		}
	}

	var setAPN Step
	if m.config.APN != "" {
		setAPN = func(ctx context.Context) error {
			return m.modem.SetAPN(ctx, 1, m.config.APN, modem.PDPIPv4)
		}
	}
	seq := Sequence{Name: "callback and apn config", Steps: []Step{
		m.modem.EnableRegistrationURC,
		setAPN,
	}}
	if err := seq.Run(ctx); err != nil {
		m.logStepError(err)
	}
	return true
}

// registered polls the EPS registration.
func (m *Machine) registered(ctx context.Context) bool {
	status, err := m.modem.Registration(ctx, true)
	if err != nil {
		m.logger.Debug("EPS registration query failed", "error", err)
		return false
	}
	if !status.Registered() {
		m.logger.Debug("EPS registration status, waiting", "status", status.String())
		return false
	}

	op, err := m.modem.Operator(ctx)
	if err != nil {
		m.logger.Debug("operator query failed", "error", err)
	}
	rssi, err := m.modem.RSSI(ctx)
	if err != nil {
		m.logger.Debug("rssi query failed", "error", err)
	}
	var network string
	if t, err := m.modem.Clock(ctx); err == nil {
		network = t.Format(time.RFC3339)
	}
	m.logger.Info("registered", "status", status.String(), "operator", op, "rssi", rssi, "clock", network)
	return true
}

// activate brings up the data context in the way the model needs. On
// SARA-R5 success only means the activation was requested; +UUPSDA
// completes it.
func (m *Machine) activate(ctx context.Context) bool {
	switch m.family() {
	case laraR6:
		return true
	case lenaR8:
		return m.activateLENA(ctx)
	default:
		return m.activateSARA(ctx)
	}
}

// activateLENA copies the network's context 0 to context 1, which is the
// first one LENA-R8 can use for IP, and activates the contexts.
func (m *Machine) activateLENA(ctx context.Context) bool {
	seq := Sequence{Name: "LTE activate context", Steps: []Step{
		func(ctx context.Context) error {
			apn, err := m.modem.GetAPN(ctx, 0)
			if err != nil {
				return err
			}
			if apn.Name != "" && apn.Type != modem.PDPNonIP {
				// Fails when the context is already active.
				if err := m.modem.SetAPN(ctx, 1, apn.Name, apn.Type); err != nil {
					m.logger.Debug("copy context 0 failed", "apn", apn.Name, "error", err)
				}
			}
			return nil
		},
		Lenient(func(ctx context.Context) error {
			return m.modem.ActivatePDPContext(ctx, true, -1)
		}, true, m.logger, "context may be active"),
	}}
	if err := seq.Run(ctx); err != nil {
		m.logStepError(err)
		return false
	}
	return true
}

// activateSARA maps the first usable context to the PSD profile and
// activates it.
func (m *Machine) activateSARA(ctx context.Context) bool {
	profile := m.config.PSDProfile
	if err := m.modem.PerformPDPAction(ctx, profile, modem.PSDDeactivate); err != nil {
		m.logger.Debug("deactivate profile failed", "profile", profile, "error", err)
	}

	for cid := 0; cid < numCIDs; cid++ {
		apn, err := m.modem.GetAPN(ctx, cid)
		if err != nil {
			m.logger.Debug("read context failed", "cid", cid, "error", err)
			continue
		}
		pdp := apn.Type
		if m.config.PDPType != modem.PDPIPv4 {
			pdp = m.config.PDPType
		}
		if apn.Name == "" || pdp == modem.PDPInvalid {
			continue
		}

		m.logger.Info("activate profile", "apn", apn.Name, "ip", apn.IP, "pdp", pdp.String(), "cid", cid)
		seq := Sequence{Name: "profile activation", Steps: []Step{
			func(ctx context.Context) error {
				return m.modem.SetPDPConfiguration(ctx, profile, modem.PSDProtocol, int(pdp))
			},
			func(ctx context.Context) error {
				return m.modem.SetPDPConfiguration(ctx, profile, modem.PSDMapToCID, cid)
			},
			func(ctx context.Context) error {
				return m.modem.PerformPDPAction(ctx, profile, modem.PSDActivate)
			},
		}}
		if err := seq.Run(ctx); err != nil {
			m.logStepError(err)
			continue
		}
		return true
	}
	return false
}
