package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	userIDMin  = 1
	userIDMax  = 100000
	bodyMinLen = 1
	bodyMaxLen = 500
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

var (
	ErrUserIDRequired    = errors.New("userId is required")
	ErrUserIDNotNumeric  = errors.New("userId must be a valid integer string")
	ErrUserIDOutOfRange  = fmt.Errorf("userId must be between %d and %d", userIDMin, userIDMax)
	ErrInvalidUsername   = errors.New("username must be 3-20 alphanumeric or underscore characters")
	ErrInvalidBody       = fmt.Errorf("message must be between %d and %d characters", bodyMinLen, bodyMaxLen)
	ErrTimestampRequired = errors.New("timestamp is required")
	ErrInvalidTimestamp  = errors.New("timestamp must be a valid ISO-8601 timestamp")
	ErrInvalidType       = errors.New("messageType must be TEXT, JOIN, or LEAVE")
)

// Validate checks a chat message against the ingress constraints.
// The first violated constraint is returned; the check order is
// userId, username, message body, timestamp, messageType.
func (m *ChatMessage) Validate() error {
	if m.UserID == "" {
		return ErrUserIDRequired
	}
	id, err := strconv.Atoi(m.UserID)
	if err != nil {
		return ErrUserIDNotNumeric
	}
	if id < userIDMin || id > userIDMax {
		return ErrUserIDOutOfRange
	}

	if !usernamePattern.MatchString(m.Username) {
		return ErrInvalidUsername
	}

	// Length limits count characters, not bytes.
	if n := utf8.RuneCountInString(m.Message); n < bodyMinLen || n > bodyMaxLen {
		return ErrInvalidBody
	}

	if m.Timestamp == "" {
		return ErrTimestampRequired
	}
	if _, err := time.Parse(time.RFC3339, m.Timestamp); err != nil {
		return ErrInvalidTimestamp
	}

	if !m.MessageType.Valid() {
		return ErrInvalidType
	}

	return nil
}
