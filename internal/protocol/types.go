// Package protocol implements the SiriDB client wire protocol: frame
// headers, the request/response type table, and the payload codec
// adapter. It has no knowledge of clusters, endpoints or retries.
package protocol

// MaxPackageSize is the largest payload, in bytes, a single frame may
// carry. Frames exceeding this are rejected before encoding and after
// parsing.
const MaxPackageSize = 2000000

// Type is a single protocol message type code, carried as the frame
// header's one-byte "type" field.
type Type uint8

// Request type codes.
const (
	ReqQuery           Type = 0x01
	ReqInsert          Type = 0x02
	ReqAuth            Type = 0x03
	ReqPing            Type = 0x04
	ReqInfo            Type = 0x05
	ReqLoadDB          Type = 0x06
	ReqRegisterServer  Type = 0x07
	ReqFileServers     Type = 0x08
	ReqFileDatabase    Type = 0x09
	ReqFileUsers       Type = 0x0A
)

// Response type codes, success and error.
const (
	ResQuery       Type = 0x10
	ResInsert      Type = 0x11
	ResAck         Type = 0x12
	ResAuthSuccess Type = 0x13
	ResInfo        Type = 0x14
	ResFile        Type = 0x15

	ErrMsg              Type = 0x20
	ErrQuery            Type = 0x21
	ErrInsert           Type = 0x22
	ErrServer           Type = 0x23
	ErrPool             Type = 0x24
	ErrUserAccess       Type = 0x25
	Err                 Type = 0x26
	ErrNotAuthenticated Type = 0x27
	ErrAuthCredentials  Type = 0x28
	ErrAuthUnknownDB    Type = 0x29
	ErrLoadingDB        Type = 0x2A
	ErrFile             Type = 0x2B
)

// textReqMap and textResMap back Type.String, used in log lines and
// timeout error messages.
var textReqMap = map[Type]string{
	ReqQuery:          "QUERY",
	ReqInsert:         "INSERT",
	ReqAuth:           "AUTH",
	ReqPing:           "PING",
	ReqInfo:           "INFO",
	ReqLoadDB:         "LOADDB",
	ReqRegisterServer: "REGISTER_SERVER",
	ReqFileServers:    "FILE_SERVERS",
	ReqFileDatabase:   "FILE_DATABASE",
	ReqFileUsers:      "FILE_USERS",
}

var textResMap = map[Type]string{
	ResQuery:            "RES_QUERY",
	ResInsert:           "RES_INSERT",
	ResAck:              "RES_ACK",
	ResAuthSuccess:      "RES_AUTH_SUCCESS",
	ResInfo:             "RES_INFO",
	ResFile:             "RES_FILE",
	ErrMsg:              "ERR_MSG",
	ErrQuery:            "ERR_QUERY",
	ErrInsert:           "ERR_INSERT",
	ErrServer:           "ERR_SERVER",
	ErrPool:             "ERR_POOL",
	ErrUserAccess:       "ERR_USER_ACCESS",
	Err:                 "ERR",
	ErrNotAuthenticated: "ERR_NOT_AUTHENTICATED",
	ErrAuthCredentials:  "ERR_AUTH_CREDENTIALS",
	ErrAuthUnknownDB:    "ERR_AUTH_UNKNOWN_DB",
	ErrLoadingDB:        "ERR_LOADING_DB",
	ErrFile:             "ERR_FILE",
}

// String renders a request or response type code for logging; unknown
// codes render as "UNKNOWN".
func (t Type) String() string {
	if s, ok := textReqMap[t]; ok {
		return s
	}
	if s, ok := textResMap[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Kind is the payload shape for a given message type: no body, a
// codec-encoded value, or an opaque byte slice carried as-is.
type Kind uint8

const (
	KindNone Kind = iota
	KindEncoded
	KindRaw
)

// MapReqDType dispatches how to pack the payload for each outgoing
// request type.
var MapReqDType = map[Type]Kind{
	ReqQuery:          KindEncoded,
	ReqInsert:         KindEncoded,
	ReqAuth:           KindEncoded,
	ReqPing:           KindNone,
	ReqInfo:           KindNone,
	ReqLoadDB:         KindEncoded,
	ReqRegisterServer: KindEncoded,
	ReqFileServers:    KindNone,
	ReqFileDatabase:   KindNone,
	ReqFileUsers:      KindNone,
}

// MapResDType dispatches how to unpack the payload for each incoming
// response type.
var MapResDType = map[Type]Kind{
	ResQuery:            KindEncoded,
	ResInsert:           KindEncoded,
	ResAck:              KindNone,
	ResAuthSuccess:      KindNone,
	ResInfo:             KindEncoded,
	ResFile:             KindRaw,
	ErrMsg:              KindEncoded,
	ErrQuery:            KindEncoded,
	ErrInsert:           KindEncoded,
	ErrServer:           KindEncoded,
	ErrPool:             KindEncoded,
	ErrUserAccess:       KindEncoded,
	Err:                 KindNone,
	ErrNotAuthenticated: KindNone,
	ErrAuthCredentials:  KindNone,
	ErrAuthUnknownDB:    KindNone,
	ErrLoadingDB:        KindNone,
	ErrFile:             KindNone,
}

// ErrorTypes is the set of response codes that resolve a pending
// request with an error instead of a value.
var ErrorTypes = map[Type]bool{
	ErrMsg:              true,
	ErrQuery:            true,
	ErrInsert:           true,
	ErrServer:           true,
	ErrPool:             true,
	ErrUserAccess:       true,
	Err:                 true,
	ErrNotAuthenticated: true,
	ErrAuthCredentials:  true,
	ErrAuthUnknownDB:    true,
	ErrLoadingDB:        true,
	ErrFile:             true,
}

// Precision is the time unit tag carried in a QUERY request payload.
type Precision int8

const (
	PrecisionNone        Precision = -1
	PrecisionSecond      Precision = 0
	PrecisionMillisecond Precision = 1
	PrecisionMicrosecond Precision = 2
	PrecisionNanosecond  Precision = 3
)
