package event

import "github.com/evmts/smithers/internal/domain"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info domain.Session `json:"info"`
}

// SessionUpdatedData is the data for session.updated events.
type SessionUpdatedData struct {
	Info domain.Session `json:"info"`
}

// SessionDeletedData is the data for session.deleted events.
type SessionDeletedData struct {
	SessionID int64 `json:"sessionId"`
}

// MessageCreatedData is the data for message.created events.
type MessageCreatedData struct {
	Info domain.Message `json:"info"`
}

// MessageUpdatedData is the data for message.updated events.
type MessageUpdatedData struct {
	Info domain.Message `json:"info"`
}

// MessageRemovedData is the data for message.removed events.
type MessageRemovedData struct {
	SessionID int64 `json:"sessionId"`
	MessageID int64 `json:"messageId"`
}

// PartUpdatedData is the data for part.updated events: a streamed delta to
// an in-progress assistant message.
type PartUpdatedData struct {
	SessionID int64  `json:"sessionId"`
	MessageID int64  `json:"messageId"`
	Delta     string `json:"delta"`
}

// FileEditedData is the data for file.edited events.
type FileEditedData struct {
	File string `json:"file"`
}
