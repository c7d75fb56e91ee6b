package wire

// Generic response markers (§4.1).
const (
	OKMarker        = 0x00
	EOFMarker       = 0xfe
	ErrMarker       = 0xff
	SemiSyncMagic   = 0xef // byte 5 of a semi-sync prefixed event
	AuthMoreMarker  = 0x01
	AuthSwitchByte  = 0xfe
)

// Commands relevant to the binlog router and the splitter (§6).
const (
	ComQuit          = 0x01
	ComQuery         = 0x03
	ComStatistics    = 0x09
	ComPing          = 0x0e
	ComRegisterSlave = 0x15
	ComStmtPrepare   = 0x16
	ComStmtExecute   = 0x17
	ComStmtSendData  = 0x18
	ComStmtClose     = 0x19
	ComStmtFetch     = 0x1c
	ComBinlogDump    = 0x12
)

// Capability flags (subset used by handshake/auth).
const (
	CapLongPassword     = 0x00000001
	CapFoundRows        = 0x00000002
	CapLongFlag         = 0x00000004
	CapConnectWithDB    = 0x00000008
	CapCompress         = 0x00000020
	CapPluginAuth       = 0x00080000
	CapSSL              = 0x00000800
	CapSecureConnection = 0x00008000
	CapPluginAuthLenencData = 0x00200000
	CapConnectAttrs     = 0x00100000
	CapProtocol41       = 0x00000200
	CapTransactions     = 0x00002000
	CapSessionTrack     = 0x00800000
)

// BinlogDumpNonBlock is the COM_BINLOG_DUMP flag requesting the master
// close the connection instead of blocking once the slave has caught up.
const BinlogDumpNonBlock = 0x01

// MaxPacketSize is the largest client-advertised packet size.
const MaxPacketSize = maxPacketSize
