package model

import "testing"

func TestAttachmentURL(t *testing.T) {
	t.Parallel()

	sub := &Submission{
		Serial: "1",
		Payload: map[string]any{
			"data": map[string]any{
				"attachments": map[string]any{
					"dokument": map[string]any{"url": "https://os2.example/f/1"},
				},
			},
		},
	}

	if got := sub.AttachmentURL("dokument"); got != "https://os2.example/f/1" {
		t.Fatalf("url = %q", got)
	}
	if got := sub.AttachmentURL("andet"); got != "" {
		t.Fatalf("unknown field must yield empty string, got %q", got)
	}
	if got := sub.AttachmentURL(""); got != "" {
		t.Fatalf("empty field must yield empty string, got %q", got)
	}
}

func TestAttachmentURL_MissingLevels(t *testing.T) {
	t.Parallel()

	cases := []*Submission{
		{Payload: nil},
		{Payload: map[string]any{}},
		{Payload: map[string]any{"data": map[string]any{}}},
		{Payload: map[string]any{"data": map[string]any{"attachments": map[string]any{}}}},
	}

	for i, sub := range cases {
		if got := sub.AttachmentURL("dokument"); got != "" {
			t.Fatalf("case %d: got %q, want empty", i, got)
		}
	}
}
