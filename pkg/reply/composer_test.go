package reply

import (
	"errors"
	"strings"
	"testing"
)

func TestComposeTextOnly(t *testing.T) {
	out, err := Composer{Prompt: "Rate:"}.Compose(Text("Hi"), 7)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(out))
	}
	if out[0].Kind != KindText || out[0].Text != "Hi" {
		t.Fatalf("unexpected delivery: %+v", out[0])
	}
	if len(out[0].Buttons) != 0 {
		t.Fatalf("text delivery should carry no keyboard: %+v", out[0].Buttons)
	}
}

func TestComposeCaptionAboveWithButtons(t *testing.T) {
	res := Result{
		Text:      "Cap",
		ImagePath: "img.png",
		Placement: CaptionAbove,
		Buttons:   []string{"A", "B"},
	}

	out, err := Composer{Prompt: "Rate:"}.Compose(res, 42)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(out))
	}
	if out[0].Kind != KindText || out[0].Text != "Cap" {
		t.Fatalf("first delivery should be the caption, got %+v", out[0])
	}
	if out[1].Kind != KindPhoto || out[1].ImagePath != "img.png" {
		t.Fatalf("second delivery should be the photo, got %+v", out[1])
	}

	prompt := out[2]
	if prompt.Kind != KindPrompt || prompt.Text != "Rate:" || prompt.ReplyTo != 42 {
		t.Fatalf("unexpected prompt: %+v", prompt)
	}
	want := []Button{{Label: "A", Data: "A_42"}, {Label: "B", Data: "B_42"}}
	if len(prompt.Buttons) != len(want) {
		t.Fatalf("expected %d buttons, got %d", len(want), len(prompt.Buttons))
	}
	for i := range want {
		if prompt.Buttons[i] != want[i] {
			t.Fatalf("button %d: expected %+v, got %+v", i, want[i], prompt.Buttons[i])
		}
	}
}

func TestComposeCaptionBelow(t *testing.T) {
	res := Result{Text: "Cap", ImageURL: "https://example.com/a.png", Placement: CaptionBelow}

	out, err := Composer{}.Compose(res, 1)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if len(out) != 2 || out[0].Kind != KindPhoto || out[1].Kind != KindText {
		t.Fatalf("expected [photo, text], got %+v", out)
	}
	if out[0].ImageURL != "https://example.com/a.png" {
		t.Fatalf("unexpected image url %q", out[0].ImageURL)
	}
}

func TestComposeImageOnly(t *testing.T) {
	out, err := Composer{}.Compose(Result{ImagePath: "only.jpg"}, 1)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if len(out) != 1 || out[0].Kind != KindPhoto {
		t.Fatalf("expected a single photo, got %+v", out)
	}
}

func TestComposeRejectsInvalidResults(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want error
	}{
		{"empty", Result{}, ErrEmptyReply},
		{"buttons only", Result{Buttons: []string{"A"}}, ErrEmptyReply},
		{"both images", Result{ImagePath: "a.png", ImageURL: "https://x/a.png"}, ErrAmbiguousImage},
		{"separator in label", Result{Text: "x", Buttons: []string{"a_b"}}, ErrInvalidButtonLabel},
		{"empty label", Result{Text: "x", Buttons: []string{""}}, ErrInvalidButtonLabel},
		{"long label", Result{Text: "x", Buttons: []string{strings.Repeat("z", 64)}}, ErrInvalidButtonLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Composer{Prompt: "Rate:"}.Compose(tt.res, 5)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
