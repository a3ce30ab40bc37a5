package domain

type RoomKind string

const (
	RoomKindChat  RoomKind = "chat"
	RoomKindCode  RoomKind = "code"
	RoomKindMixed RoomKind = "mixed"
)

func (k RoomKind) Valid() bool {
	switch k {
	case RoomKindChat, RoomKindCode, RoomKindMixed:
		return true
	}
	return false
}

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindSystem MessageKind = "system"
	MessageKindFile   MessageKind = "file"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindSystem, MessageKindFile:
		return true
	}
	return false
}

// Encrypted reports whether bodies of this kind travel end-to-end encrypted
// when the room has encryption enabled. System messages are always plaintext.
func (k MessageKind) Encrypted() bool {
	return k == MessageKindText || k == MessageKindFile
}

// MainDocument is the single live document a room session edits.
const MainDocument = "main"

// DefaultLanguage is the syntax mode of a freshly created document.
const DefaultLanguage = "plaintext"
