package reply

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	tokenSeparator = "_"
	// maxTokenBytes is Telegram's limit on callback data.
	maxTokenBytes = 64
)

// Choice is a decoded button press.
type Choice struct {
	Label     string
	MessageID int
}

// EncodeToken builds the callback data "<label>_<messageID>".
// Labels must be non-empty and free of the separator.
func EncodeToken(label string, messageID int) (string, error) {
	if label == "" {
		return "", fmt.Errorf("%w: empty label", ErrInvalidButtonLabel)
	}
	if strings.Contains(label, tokenSeparator) {
		return "", fmt.Errorf("%w: %q contains %q", ErrInvalidButtonLabel, label, tokenSeparator)
	}
	token := label + tokenSeparator + strconv.Itoa(messageID)
	if len(token) > maxTokenBytes {
		return "", fmt.Errorf("%w: %q exceeds %d bytes of callback data", ErrInvalidButtonLabel, label, maxTokenBytes)
	}
	return token, nil
}

// ParseToken splits data at the first separator.
func ParseToken(data string) (Choice, error) {
	label, rest, ok := strings.Cut(data, tokenSeparator)
	if !ok || label == "" {
		return Choice{}, fmt.Errorf("malformed callback token %q", data)
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return Choice{}, fmt.Errorf("malformed callback token %q: %w", data, err)
	}
	return Choice{Label: label, MessageID: id}, nil
}
