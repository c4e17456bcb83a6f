package reply

import "fmt"

// Composer turns a Result into the ordered deliveries for one reply.
type Composer struct {
	// Prompt is the text of the message carrying the keyboard.
	Prompt string
}

// Compose validates res and returns its deliveries. originMessageID is the
// inbound message being answered; button tokens and the prompt refer to it.
func (c Composer) Compose(res Result, originMessageID int) ([]Delivery, error) {
	if res.ImagePath != "" && res.ImageURL != "" {
		return nil, ErrAmbiguousImage
	}
	if res.Text == "" && !res.hasImage() {
		return nil, ErrEmptyReply
	}

	var out []Delivery
	text := Delivery{Kind: KindText, Text: res.Text}
	photo := Delivery{Kind: KindPhoto, ImagePath: res.ImagePath, ImageURL: res.ImageURL}

	switch {
	case res.hasImage() && res.Text != "":
		if res.Placement == CaptionBelow {
			out = append(out, photo, text)
		} else {
			out = append(out, text, photo)
		}
	case res.hasImage():
		out = append(out, photo)
	default:
		out = append(out, text)
	}

	if len(res.Buttons) > 0 {
		prompt, err := c.prompt(res.Buttons, originMessageID)
		if err != nil {
			return nil, err
		}
		out = append(out, prompt)
	}
	return out, nil
}

func (c Composer) prompt(labels []string, originMessageID int) (Delivery, error) {
	buttons := make([]Button, 0, len(labels))
	for _, label := range labels {
		data, err := EncodeToken(label, originMessageID)
		if err != nil {
			return Delivery{}, fmt.Errorf("button %d: %w", len(buttons)+1, err)
		}
		buttons = append(buttons, Button{Label: label, Data: data})
	}
	return Delivery{
		Kind:    KindPrompt,
		Text:    c.Prompt,
		ReplyTo: originMessageID,
		Buttons: buttons,
	}, nil
}
