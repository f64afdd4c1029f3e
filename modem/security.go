package modem

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/assistnow/at"
)

// SecurityObject is the kind of material stored in the security manager.
type SecurityObject int

const (
	SecRootCA SecurityObject = iota
	SecClientCert
	SecClientKey
	SecServerCert
)

// Security profile operations for +USECPRF.
const (
	SecProfCertValLevel = 0
	SecProfTLSVersion   = 1
	SecProfCipherSuite  = 2
	SecProfRootCA       = 3
	SecProfServerName   = 4
	SecProfClientCert   = 5
	SecProfClientKey    = 6
	SecProfSNI          = 10
)

// Certificate validation levels.
const (
	CertValNone = iota
	CertValRootNoURL
	CertValRootWithURL
	CertValRootWithURLAndDate
)

// TLS versions and cipher selection.
const (
	TLSAnyVersion = 0
	TLSVersion12  = 3
	CipherDefault = 0
)

const importTimeout = 10 * time.Second

// ImportSecurityObject stores data under name. The module prompts with ">"
// after the header and then expects exactly len(data) raw bytes.
func (m *Modem) ImportSecurityObject(ctx context.Context, kind SecurityObject, name string, data []byte) error {
	if name == "" || len(data) == 0 || kind < SecRootCA || kind > SecServerCert {
		return &CommandError{Command: at.Escape + at.CmdSecurityMgr, Code: -1, Err: ErrUnexpectedParam}
	}
	_, err := m.SendCommandWithResponse(ctx, Command{
		Text:       fmt.Sprintf("%s0,%d,\"%s\",%d", at.CmdSecurityMgr, kind, name, len(data)),
		Terminator: at.PromptMark,
	})
	if err != nil {
		return err
	}
	_, err = m.SendCommandWithResponse(ctx, Command{Text: string(data), Raw: true, Timeout: importTimeout})
	return err
}

// ResetSecurityProfile restores the factory settings of profile.
func (m *Modem) ResetSecurityProfile(ctx context.Context, profile int) error {
	return m.expectOK(ctx, fmt.Sprintf("%s%d", at.CmdSecurityProf, profile))
}

func (m *Modem) ConfigSecurityProfile(ctx context.Context, profile, op, value int) error {
	return m.expectOK(ctx, fmt.Sprintf("%s%d,%d,%d", at.CmdSecurityProf, profile, op, value))
}

func (m *Modem) ConfigSecurityProfileString(ctx context.Context, profile, op int, value string) error {
	return m.expectOK(ctx, fmt.Sprintf("%s%d,%d,\"%s\"", at.CmdSecurityProf, profile, op, value))
}
