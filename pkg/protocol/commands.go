package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/mythfs/pkg/fserrors"
)

// ============================================================================
// Connection setup
// ============================================================================

// ProtoVersion is the version handshake sent first on every connection.
type ProtoVersion struct {
	Version string
	Token   string
}

func (c ProtoVersion) String() string {
	if c.Token == "" {
		return "MYTH_PROTO_VERSION " + c.Version
	}
	return "MYTH_PROTO_VERSION " + c.Version + " " + c.Token
}

// ParseProtoVersionReply checks that the backend accepted the handshake.
func ParseProtoVersionReply(resp string) error {
	fields := Split(resp)
	switch fields[0] {
	case "ACCEPT":
		return nil
	case "REJECT":
		remote := ""
		if len(fields) > 1 {
			remote = fields[1]
		}
		return fserrors.Newf(fserrors.ProtocolError, "handshake", "backend rejected protocol version (backend speaks %q)", remote)
	default:
		return fserrors.Newf(fserrors.ProtocolError, "handshake", "unexpected reply %q", resp)
	}
}

// AnnounceMonitor announces a control connection, optionally subscribing it
// to backend events.
type AnnounceMonitor struct {
	LocalID string
	Events  bool
}

func (c AnnounceMonitor) String() string {
	return fmt.Sprintf("ANN Monitor %s %s", c.LocalID, boolField(c.Events))
}

// ParseOK checks a bare "OK" reply.
func ParseOK(op, resp string) error {
	if Split(resp)[0] != "OK" {
		return fserrors.Newf(fserrors.ProtocolError, op, "unexpected reply %q", resp)
	}
	return nil
}

// ============================================================================
// File transfer
// ============================================================================

// AnnounceFileTransfer opens a transfer session on a data connection.
type AnnounceFileTransfer struct {
	LocalID  string
	Write    bool
	Filename string
	Group    string
}

func (c AnnounceFileTransfer) String() string {
	return fmt.Sprintf("ANN FileTransfer %s %s 0 %s",
		c.LocalID, boolField(c.Write), Join("-1", c.Filename, c.Group))
}

// AnnounceReply is the decoded reply to AnnounceFileTransfer.
type AnnounceReply struct {
	SessionID int64
	Size      int64
}

// ParseAnnounceReply decodes "OK<sep>id<sep>sizeHigh<sep>sizeLow".
func ParseAnnounceReply(resp string) (AnnounceReply, error) {
	const op = "announce"

	fields := Split(resp)
	if fields[0] != "OK" {
		return AnnounceReply{}, fserrors.Newf(fserrors.ProtocolError, op, "backend refused transfer: %q", resp)
	}
	if len(fields) != 4 {
		return AnnounceReply{}, fserrors.Newf(fserrors.ProtocolError, op, "expected 4 fields, got %d in %q", len(fields), resp)
	}

	id, err := parseInt(op, "session id", fields[1])
	if err != nil {
		return AnnounceReply{}, err
	}
	size, err := ParseInt64Pair(op, fields[2], fields[3])
	if err != nil {
		return AnnounceReply{}, err
	}
	if size < 0 {
		return AnnounceReply{}, fserrors.Newf(fserrors.ProtocolError, op, "negative file size %d", size)
	}

	return AnnounceReply{SessionID: id, Size: size}, nil
}

func queryFileTransfer(id int64, fields ...string) string {
	return "QUERY_FILETRANSFER " + Join(append([]string{strconv.FormatInt(id, 10)}, fields...)...)
}

// RequestBlock asks the backend to push Count bytes on the data connection.
type RequestBlock struct {
	SessionID int64
	Count     uint32
}

func (c RequestBlock) String() string {
	return queryFileTransfer(c.SessionID, "REQUEST_BLOCK", strconv.FormatUint(uint64(c.Count), 10))
}

// ParseBlockReply decodes the number of bytes the backend will deliver.
// -1 signals a total failure.
func ParseBlockReply(resp string) (int64, error) {
	return parseInt("request block", "byte count", Split(resp)[0])
}

// WriteBlock declares Count bytes just written on the data connection.
type WriteBlock struct {
	SessionID int64
	Count     uint32
}

func (c WriteBlock) String() string {
	return queryFileTransfer(c.SessionID, "WRITE_BLOCK", strconv.FormatUint(uint64(c.Count), 10))
}

// ParseWriteBlockReply decodes the number of bytes the backend stored.
func ParseWriteBlockReply(resp string) (int64, error) {
	return parseInt("write block", "byte count", Split(resp)[0])
}

// Seek moves the backend read/write cursor.
//
// Offset and Current are sent as high/low pairs: offset first, then whence,
// then the pre-seek position.
type Seek struct {
	SessionID int64
	Offset    int64
	Whence    int
	Current   int64
}

func (c Seek) String() string {
	offHigh, offLow := pairFields(c.Offset)
	curHigh, curLow := pairFields(c.Current)
	return queryFileTransfer(c.SessionID, "SEEK",
		offHigh, offLow, strconv.Itoa(c.Whence), curHigh, curLow)
}

// ParseSeekReply decodes the new absolute position.
func ParseSeekReply(resp string) (int64, error) {
	fields := Split(resp)
	if len(fields) < 2 {
		return 0, fserrors.Newf(fserrors.ProtocolError, "seek", "expected position pair, got %q", resp)
	}
	return ParseInt64Pair("seek", fields[0], fields[1])
}

// Join releases a transfer session.
type Join struct {
	SessionID int64
}

func (c Join) String() string {
	return queryFileTransfer(c.SessionID, "JOIN")
}

// ============================================================================
// File operations
// ============================================================================

// QueryFileExists asks whether Filename exists in Group on the backend.
type QueryFileExists struct {
	Filename string
	Group    string
}

func (c QueryFileExists) String() string {
	return Join("QUERY_FILE_EXISTS", c.Filename, c.Group)
}

// ParseFileExistsReply decodes "0" or "1<sep>fullPath".
func ParseFileExistsReply(resp string) (path string, exists bool, err error) {
	const op = "file exists"

	fields := Split(resp)
	flag, err := parseInt(op, "flag", fields[0])
	if err != nil {
		return "", false, err
	}
	if flag == 0 {
		return "", false, nil
	}
	if len(fields) < 2 || fields[1] == "" {
		return "", false, fserrors.Newf(fserrors.ProtocolError, op, "missing path in %q", resp)
	}
	return fields[1], true, nil
}

// QueryFileHash asks the backend for the hash of a stored file.
type QueryFileHash struct {
	Filename string
	Group    string
}

func (c QueryFileHash) String() string {
	return Join("QUERY_FILE_HASH", c.Filename, c.Group)
}

// ParseFileHashReply returns the hash, or NotFound when the backend
// answers with an empty or "NULL" hash.
func ParseFileHashReply(resp string) (string, error) {
	hash := strings.TrimSpace(Split(resp)[0])
	if hash == "" || hash == "NULL" {
		return "", fserrors.New(fserrors.NotFound, "file hash", "backend has no hash for file")
	}
	return hash, nil
}

// DeleteFile asks the backend to delete a file from a storage group.
type DeleteFile struct {
	Filename string
	Group    string
}

func (c DeleteFile) String() string {
	return Join("DELETE_FILE", c.Filename, c.Group)
}

// ParseDeleteFileReply decodes the backend's boolean result.
func ParseDeleteFileReply(resp string) (bool, error) {
	v, err := parseInt("delete file", "result", Split(resp)[0])
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// QueryFreeSpaceList asks the backend for free space of every storage
// directory it knows about.
type QueryFreeSpaceList struct{}

func (QueryFreeSpaceList) String() string {
	return "QUERY_FREE_SPACE_LIST"
}

// FreeSpace is one entry of the free-space list. Sizes are in KiB.
type FreeSpace struct {
	Host      string
	Path      string
	IsLocal   bool
	DiskNum   int64
	GroupID   int64
	BlockSize int64
	TotalKB   int64
	UsedKB    int64
}

// FreeKB returns the unused space in KiB.
func (f FreeSpace) FreeKB() int64 {
	return f.TotalKB - f.UsedKB
}

const freeSpaceFields = 10

// ParseFreeSpaceList decodes a flat list of 10-field records.
func ParseFreeSpaceList(resp string) ([]FreeSpace, error) {
	const op = "free space list"

	if resp == "" {
		return nil, nil
	}
	fields := Split(resp)
	if len(fields)%freeSpaceFields != 0 {
		return nil, fserrors.Newf(fserrors.ProtocolError, op, "%d fields is not a multiple of %d", len(fields), freeSpaceFields)
	}

	out := make([]FreeSpace, 0, len(fields)/freeSpaceFields)
	for i := 0; i < len(fields); i += freeSpaceFields {
		rec := fields[i : i+freeSpaceFields]

		var ints [3]int64
		for j := range ints {
			v, err := parseInt(op, "integer field", rec[3+j])
			if err != nil {
				return nil, err
			}
			ints[j] = v
		}
		local, err := parseInt(op, "locality flag", rec[2])
		if err != nil {
			return nil, err
		}
		total, err := ParseInt64Pair(op, rec[6], rec[7])
		if err != nil {
			return nil, err
		}
		used, err := ParseInt64Pair(op, rec[8], rec[9])
		if err != nil {
			return nil, err
		}

		out = append(out, FreeSpace{
			Host:      rec[0],
			Path:      rec[1],
			IsLocal:   local != 0,
			DiskNum:   ints[0],
			GroupID:   ints[1],
			BlockSize: ints[2],
			TotalKB:   total,
			UsedKB:    used,
		})
	}
	return out, nil
}

// ============================================================================
// Events
// ============================================================================

// FileSizeTimeLayout is the start-time layout used in UPDATE_FILE_SIZE events.
const FileSizeTimeLayout = "2006-01-02T15-04-05"

// FileSizeEventPattern matches UPDATE_FILE_SIZE events for one recording.
// The first submatch is the new size in bytes.
func FileSizeEventPattern(chanID int64, start time.Time) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(Join("BACKEND_MESSAGE", "")) +
		regexp.QuoteMeta(fmt.Sprintf("UPDATE_FILE_SIZE %d %s ", chanID, start.Format(FileSizeTimeLayout))) +
		"([0-9]+)" + regexp.QuoteMeta(Join("", "empty")) + "$")
}

// ParseFileSizeEvent extracts the size from an event matched by pattern.
func ParseFileSizeEvent(pattern *regexp.Regexp, event string) (int64, bool) {
	m := pattern.FindStringSubmatch(event)
	if m == nil {
		return 0, false
	}
	size, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return size, true
}

// IsEvent reports whether a received message is an unsolicited event rather
// than a response.
func IsEvent(message string) bool {
	return strings.HasPrefix(message, "BACKEND_MESSAGE"+Separator)
}
