package reply

import "fmt"

// Router resolves button presses. It keeps no state: everything needed is
// in the callback token.
type Router struct {
	// Confirmation is a format string taking the chosen label.
	Confirmation string
}

// Route decodes data and formats the confirmation text.
func (r Router) Route(data string) (Choice, string, error) {
	choice, err := ParseToken(data)
	if err != nil {
		return Choice{}, "", err
	}
	return choice, fmt.Sprintf(r.Confirmation, choice.Label), nil
}
