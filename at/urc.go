package at

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SocketData announces bytes waiting on a socket (+UUSORD, or +UUSORF for UDP).
type SocketData struct {
	Socket int
	Length int
	UDP    bool
}

// SocketListen reports a connection accepted on a listening socket.
type SocketListen struct {
	Socket       int
	RemoteIP     netip.Addr
	RemotePort   int
	ListenSocket int
	LocalIP      netip.Addr
	ListenPort   int
}

// SocketClosed reports that the modem closed a socket.
type SocketClosed struct {
	Socket int
}

// LocationFix is a +UULOC position report. Speed and Course are only
// filled in when the modem sends the detailed form.
type LocationFix struct {
	Time        time.Time
	Latitude    float64
	Longitude   float64
	Altitude    int
	Uncertainty int
	Speed       int
	Course      int
	Detailed    bool
}

// SIMState is the value carried by +UUSIMSTAT.
type SIMState int

const (
	SIMNotPresent SIMState = iota
	SIMPinNeeded
	SIMPinBlocked
	SIMPukBlocked
	SIMNotOperational
	SIMRestricted
	SIMOperational
	SIMPhonebookReady
	SIMUSIMPhonebookReady
	SIMToolkitRefreshOK
	SIMToolkitRefreshFailed
	SIMPPPReady
)

func (s SIMState) String() string {
	switch s {
	case SIMNotPresent:
		return "not present"
	case SIMPinNeeded:
		return "PIN needed"
	case SIMPinBlocked:
		return "PIN blocked"
	case SIMPukBlocked:
		return "PUK blocked"
	case SIMNotOperational:
		return "not operational"
	case SIMRestricted:
		return "restricted"
	case SIMOperational:
		return "operational"
	case SIMPhonebookReady:
		return "phonebook ready"
	case SIMUSIMPhonebookReady:
		return "USIM phonebook ready"
	case SIMToolkitRefreshOK:
		return "toolkit refresh ok"
	case SIMToolkitRefreshFailed:
		return "toolkit refresh failed"
	case SIMPPPReady:
		return "PPP ready"
	default:
		return fmt.Sprintf("SIMState(%d)", int(s))
	}
}

// PSDAction is the asynchronous outcome of +UPSDA. Result 0 means the
// profile was activated and IP holds the assigned address.
type PSDAction struct {
	Result int
	IP     netip.Addr
}

// PingResult is one +UUPING reply.
type PingResult struct {
	Retry    int
	Size     int
	Hostname string
	IP       netip.Addr
	TTL      int
	RTT      time.Duration
}

// HTTPResult is the completion of an HTTP client command.
type HTTPResult struct {
	Profile int
	Command int
	Result  int
}

// MQTT client command numbers used by +UMQTTC and +UUMQTTC.
const (
	MQTTLogout      = 0
	MQTTLogin       = 1
	MQTTPublish     = 2
	MQTTPublishFile = 3
	MQTTSubscribe   = 4
	MQTTUnsubscribe = 5
	MQTTRead        = 6
	MQTTReceive     = 7
	MQTTPing        = 8
)

// MQTTResult is the completion of an MQTT client command. For MQTTRead the
// Result field carries the number of unread messages.
type MQTTResult struct {
	Command int
	Result  int
}

// RegStatus is the network registration status.
type RegStatus int

const (
	RegNotRegistered RegStatus = iota
	RegHome
	RegSearching
	RegDenied
	RegUnknown
	RegRoaming
	RegHomeSMSOnly
	RegRoamingSMSOnly
	RegEmergencyOnly
	RegHomeCSFBNotPreferred
	RegRoamingCSFBNotPreferred
)

func (s RegStatus) String() string {
	switch s {
	case RegNotRegistered:
		return "not registered"
	case RegHome:
		return "home"
	case RegSearching:
		return "searching"
	case RegDenied:
		return "denied"
	case RegUnknown:
		return "unknown"
	case RegRoaming:
		return "roaming"
	case RegHomeSMSOnly:
		return "home sms only"
	case RegRoamingSMSOnly:
		return "roaming sms only"
	case RegEmergencyOnly:
		return "emergency only"
	case RegHomeCSFBNotPreferred:
		return "home csfb not preferred"
	case RegRoamingCSFBNotPreferred:
		return "roaming csfb not preferred"
	default:
		return fmt.Sprintf("RegStatus(%d)", int(s))
	}
}

// Registered reports whether the status allows data traffic.
func (s RegStatus) Registered() bool {
	return s == RegHome || s == RegRoaming
}

// Registration is a +CREG or +CEREG notification in mode 2.
type Registration struct {
	Status RegStatus
	Area   uint32 // LAC or TAC
	CellID uint32
	AcT    int
	EPS    bool
}

var (
	reSocketData   = regexp.MustCompile(`^\+UUSOR([DF]): *(\d+),(\d+)$`)
	reSocketListen = regexp.MustCompile(`^\+UUSOLI: *(\d+),"([^"]*)",(\d+),(\d+),"([^"]*)",(\d+)$`)
	reSocketClose  = regexp.MustCompile(`^\+UUSOCL: *(\d+)$`)
	reLocation     = regexp.MustCompile(`^\+UULOC: *(\d{1,2})/(\d{1,2})/(\d{4}),(\d{1,2}):(\d{2}):(\d{2})\.(\d+),(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?),(-?\d+),(\d+)(?:,(\d+),(\d+)(?:,.*)?)?$`)
	reSimState     = regexp.MustCompile(`^\+UUSIMSTAT: *(\d+)$`)
	rePSDAction    = regexp.MustCompile(`^\+UUPSDA: *(\d+)(?:,"([^"]*)")?$`)
	rePing         = regexp.MustCompile(`^\+UUPING: *(\d+),(\d+),"([^"]*)","([^"]*)",(\d+),(\d+)$`)
	reHTTPResult   = regexp.MustCompile(`^\+UUHTTPCR: *(\d+),(\d+),(\d+)$`)
	reMQTTResult   = regexp.MustCompile(`^\+UUMQTTC: *(\d+),(\d+)$`)
	// The quoted area code separates the notification from the
	// "+CEREG: <n>,<stat>" query response.
	reRegistration = regexp.MustCompile(`^\+C(E?)REG: *(\d+)(?:,"([0-9A-Fa-f]+)","([0-9A-Fa-f]+)"(?:,(\d+))?)?$`)
)

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func hex32(s string) uint32 {
	n, _ := strconv.ParseUint(s, 16, 32)
	return uint32(n)
}

// addr parses an IP address, returning the zero Addr for empty or malformed input.
func addr(s string) netip.Addr {
	a, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}
	}
	return a
}

func ParseSocketData(line string) (SocketData, bool) {
	m := reSocketData.FindStringSubmatch(line)
	if m == nil {
		return SocketData{}, false
	}
	return SocketData{Socket: atoi(m[2]), Length: atoi(m[3]), UDP: m[1] == "F"}, true
}

func ParseSocketListen(line string) (SocketListen, bool) {
	m := reSocketListen.FindStringSubmatch(line)
	if m == nil {
		return SocketListen{}, false
	}
	return SocketListen{
		Socket:       atoi(m[1]),
		RemoteIP:     addr(m[2]),
		RemotePort:   atoi(m[3]),
		ListenSocket: atoi(m[4]),
		LocalIP:      addr(m[5]),
		ListenPort:   atoi(m[6]),
	}, true
}

func ParseSocketClosed(line string) (SocketClosed, bool) {
	m := reSocketClose.FindStringSubmatch(line)
	if m == nil {
		return SocketClosed{}, false
	}
	return SocketClosed{Socket: atoi(m[1])}, true
}

// ParseLocation parses "+UULOC: dd/mm/yyyy,hh:mm:ss.sss,lat,lon,alt,unc[,speed,course,...]".
func ParseLocation(line string) (LocationFix, bool) {
	m := reLocation.FindStringSubmatch(line)
	if m == nil {
		return LocationFix{}, false
	}
	lat, err := strconv.ParseFloat(m[8], 64)
	if err != nil {
		return LocationFix{}, false
	}
	lon, err := strconv.ParseFloat(m[9], 64)
	if err != nil {
		return LocationFix{}, false
	}
	frac := m[7]
	for len(frac) < 9 {
		frac += "0"
	}
	fix := LocationFix{
		Time: time.Date(atoi(m[3]), time.Month(atoi(m[2])), atoi(m[1]),
			atoi(m[4]), atoi(m[5]), atoi(m[6]), atoi(frac[:9]), time.UTC),
		Latitude:    lat,
		Longitude:   lon,
		Altitude:    atoi(m[10]),
		Uncertainty: atoi(m[11]),
	}
	if m[12] != "" {
		fix.Detailed = true
		fix.Speed = atoi(m[12])
		fix.Course = atoi(m[13])
	}
	return fix, true
}

func ParseSIMState(line string) (SIMState, bool) {
	m := reSimState.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return SIMState(atoi(m[1])), true
}

func ParsePSDAction(line string) (PSDAction, bool) {
	m := rePSDAction.FindStringSubmatch(line)
	if m == nil {
		return PSDAction{}, false
	}
	return PSDAction{Result: atoi(m[1]), IP: addr(m[2])}, true
}

func ParsePing(line string) (PingResult, bool) {
	m := rePing.FindStringSubmatch(line)
	if m == nil {
		return PingResult{}, false
	}
	return PingResult{
		Retry:    atoi(m[1]),
		Size:     atoi(m[2]),
		Hostname: m[3],
		IP:       addr(m[4]),
		TTL:      atoi(m[5]),
		RTT:      time.Duration(atoi(m[6])) * time.Millisecond,
	}, true
}

func ParseHTTPResult(line string) (HTTPResult, bool) {
	m := reHTTPResult.FindStringSubmatch(line)
	if m == nil {
		return HTTPResult{}, false
	}
	return HTTPResult{Profile: atoi(m[1]), Command: atoi(m[2]), Result: atoi(m[3])}, true
}

func ParseMQTTResult(line string) (MQTTResult, bool) {
	m := reMQTTResult.FindStringSubmatch(line)
	if m == nil {
		return MQTTResult{}, false
	}
	return MQTTResult{Command: atoi(m[1]), Result: atoi(m[2])}, true
}

func ParseRegistration(line string) (Registration, bool) {
	m := reRegistration.FindStringSubmatch(line)
	if m == nil {
		return Registration{}, false
	}
	r := Registration{Status: RegStatus(atoi(m[2])), EPS: m[1] == "E", AcT: -1}
	if m[3] != "" {
		r.Area = hex32(m[3])
		r.CellID = hex32(m[4])
	}
	if m[5] != "" {
		r.AcT = atoi(m[5])
	}
	return r, true
}

// IsURC reports whether line is a complete unsolicited result code that
// one of the parsers in this package accepts.
func IsURC(line string) bool {
	if !strings.HasPrefix(line, "+") {
		return false
	}
	for _, parse := range urcParsers {
		if parse(line) {
			return true
		}
	}
	return false
}

var urcParsers = []func(string) bool{
	func(l string) bool { _, ok := ParseSocketData(l); return ok },
	func(l string) bool { _, ok := ParseSocketListen(l); return ok },
	func(l string) bool { _, ok := ParseSocketClosed(l); return ok },
	func(l string) bool { _, ok := ParseLocation(l); return ok },
	func(l string) bool { _, ok := ParseSIMState(l); return ok },
	func(l string) bool { _, ok := ParsePSDAction(l); return ok },
	func(l string) bool { _, ok := ParsePing(l); return ok },
	func(l string) bool { _, ok := ParseHTTPResult(l); return ok },
	func(l string) bool { _, ok := ParseMQTTResult(l); return ok },
	func(l string) bool { _, ok := ParseRegistration(l); return ok },
}
