// Package reply turns handler results into outbound deliveries and routes
// inline button presses back to the choice they encode.
package reply

import "errors"

var (
	// ErrEmptyReply is returned for a Result with neither text nor image.
	ErrEmptyReply = errors.New("reply has neither text nor image")
	// ErrAmbiguousImage is returned when both a local path and a URL are set.
	ErrAmbiguousImage = errors.New("reply sets both image path and image URL")
	// ErrInvalidButtonLabel is returned for labels that cannot be encoded
	// into a callback token.
	ErrInvalidButtonLabel = errors.New("invalid button label")
)

// Placement decides where the text goes relative to the image.
type Placement int

const (
	// CaptionAbove sends the text before the image.
	CaptionAbove Placement = iota
	// CaptionBelow sends the image first.
	CaptionBelow
)

// Result is what a command handler returns.
type Result struct {
	Text      string
	ImagePath string
	ImageURL  string
	Placement Placement
	// Buttons are offered in order in a follow-up prompt.
	Buttons []string
}

// Text is a shorthand for a text-only result.
func Text(text string) Result {
	return Result{Text: text}
}

func (r Result) hasImage() bool {
	return r.ImagePath != "" || r.ImageURL != ""
}

// Kind identifies the delivery type.
type Kind int

const (
	// KindText is a plain text message.
	KindText Kind = iota + 1
	// KindPhoto is an image, from a local path or a URL.
	KindPhoto
	// KindPrompt is the text message carrying the inline keyboard.
	KindPrompt
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPhoto:
		return "photo"
	case KindPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// Button is one inline keyboard button.
type Button struct {
	Label string
	Data  string
}

// Delivery is a single outbound message.
type Delivery struct {
	Kind      Kind
	Text      string
	ImagePath string
	ImageURL  string
	// ReplyTo is the message this delivery answers, 0 for none.
	ReplyTo int
	Buttons []Button
}
