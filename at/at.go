package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "
	// PromptMark is the sentinel the modem prints before accepting raw data.
	PromptMark = ">"
	// Escape prefixes every non-raw command written to the modem.
	Escape = "AT"

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	CmeError = "+CME ERROR:"
	CmsError = "+CMS ERROR:"

	// Terminators matched by the transaction engine.
	ResponseOK    = OK + CRLF
	ResponseError = ERROR + CRLF

	// URCs (Unsolicited Result Codes)
	UrcSocketRead    = "+UUSORD:"
	UrcSocketReadUDP = "+UUSORF:"
	UrcSocketListen  = "+UUSOLI:"
	UrcSocketClose   = "+UUSOCL:"
	UrcLocation      = "+UULOC:"
	UrcSimState      = "+UUSIMSTAT:"
	UrcPSDAction     = "+UUPSDA:"
	UrcPing          = "+UUPING:"
	UrcHTTPCommand   = "+UUHTTPCR:"
	UrcMQTTCommand   = "+UUMQTTC:"
	UrcRegistration  = "+CREG:"
	UrcEPSRegistered = "+CEREG:"
)

// Commands, without the AT escape.
const (
	CmdAt             = ""
	CmdEchoOff        = "E0"
	CmdEchoOn         = "E1"
	CmdNumericErrors  = "+CMEE=1"
	CmdManufacturer   = "+CGMI"
	CmdModel          = "+CGMM"
	CmdFirmware       = "+CGMR"
	CmdIMEI           = "+CGSN"
	CmdIMSI           = "+CIMI"
	CmdCCID           = "+CCID"
	CmdSubscriber     = "+CNUM"
	CmdSimStatus      = "+CPIN?"
	CmdSimPin         = "+CPIN="
	CmdSimStateURC    = "+USIMSTAT="
	CmdRegistration   = "+CREG"
	CmdEPSRegistered  = "+CEREG"
	CmdOperator       = "+COPS?"
	CmdSignal         = "+CSQ"
	CmdClock          = "+CCLK?"
	CmdMNOProfile     = "+UMNOPROF"
	CmdFunctionality  = "+CFUN="
	CmdBaudRate       = "+IPR="
	CmdFlowControlOn  = "&K3"
	CmdFlowControlOff = "&K0"
	CmdPDPContext     = "+CGDCONT"
	CmdPSDConfig      = "+UPSD="
	CmdPSDAction      = "+UPSDA="
	CmdPDPActivate    = "+CGACT="
	CmdPing           = "+UPING="
	CmdSecurityMgr    = "+USECMNG="
	CmdSecurityProf   = "+USECPRF="
	CmdMQTTNVM        = "+UMQTTNV="
	CmdMQTTProfile    = "+UMQTT="
	CmdMQTTCommand    = "+UMQTTC="
	CmdMQTTError      = "+UMQTTER"
	CmdGNSSUBX        = "+UGUBX="
)

// Response prefixes of query commands.
const (
	RespSimStatus  = "+CPIN:"
	RespCCID       = "+CCID:"
	RespSubscriber = "+CNUM:"
	RespOperator   = "+COPS:"
	RespSignal     = "+CSQ:"
	RespClock      = "+CCLK:"
	RespMNOProfile = "+UMNOPROF:"
	RespPDPContext = "+CGDCONT:"
	RespMQTT       = "+UMQTTC:"
	RespMQTTError  = "+UMQTTER:"

	SimReady = "READY"
	SimPin   = "SIM PIN"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // Raw data input prompt
)
