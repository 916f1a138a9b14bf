package protocol

// Message type constants (Client → Server)
const (
	TypeLogin       int32 = 0x01
	TypeChatPublic  int32 = 0x02
	TypeChatPrivate int32 = 0x03
	TypeFileRequest int32 = 0x04
	TypeHeartbeat   int32 = 0x06
)

// Message type constants (Server → Client)
const (
	TypeFileData int32 = 0x05
	TypeLoginAck int32 = 0x11
	TypeError    int32 = 0xFF
)

// TypeName returns a printable name for a message type
func TypeName(msgType int32) string {
	switch msgType {
	case TypeLogin:
		return "LOGIN"
	case TypeChatPublic:
		return "CHAT_PUBLIC"
	case TypeChatPrivate:
		return "CHAT_PRIVATE"
	case TypeFileRequest:
		return "FILE_REQ"
	case TypeFileData:
		return "FILE_DATA"
	case TypeHeartbeat:
		return "HEARTBEAT"
	case TypeLoginAck:
		return "LOGIN_ACK"
	case TypeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoginMessage (0x01) - 32-byte username
type LoginMessage struct {
	Username string
}

func (m *LoginMessage) Encode() []byte {
	buf := make([]byte, UsernameSize)
	PutFixedString(buf, m.Username)
	return buf
}

func (m *LoginMessage) Decode(payload []byte) error {
	if len(payload) < UsernameSize {
		return ErrShortBody
	}
	m.Username = ReadFixedString(payload[:UsernameSize])
	return nil
}

// ChatMessage (0x02, 0x03) - 32-byte target followed by 1024-byte content.
// Target is left empty for public chat.
type ChatMessage struct {
	Target  string
	Content string
}

// ChatBodySize is the encoded size of a ChatMessage
const ChatBodySize = UsernameSize + ContentSize

func (m *ChatMessage) Encode() []byte {
	buf := make([]byte, ChatBodySize)
	PutFixedString(buf[:UsernameSize], m.Target)
	PutFixedString(buf[UsernameSize:], m.Content)
	return buf
}

func (m *ChatMessage) Decode(payload []byte) error {
	if len(payload) < ChatBodySize {
		return ErrShortBody
	}
	m.Target = ReadFixedString(payload[:UsernameSize])
	m.Content = ReadFixedString(payload[UsernameSize:ChatBodySize])
	return nil
}

// FileRequestMessage (0x04) - 256-byte filename
type FileRequestMessage struct {
	Filename string
}

func (m *FileRequestMessage) Encode() []byte {
	buf := make([]byte, FilenameSize)
	PutFixedString(buf, m.Filename)
	return buf
}

func (m *FileRequestMessage) Decode(payload []byte) error {
	if len(payload) < FilenameSize {
		return ErrShortBody
	}
	m.Filename = ReadFixedString(payload[:FilenameSize])
	return nil
}
