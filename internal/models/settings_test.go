package models

import "testing"

func TestEmailSettingsApply(t *testing.T) {
	s := DefaultEmailSettings()

	s.Apply("email_footer", "<p>bye</p>")
	s.Apply("accent_color", "#ff0000")
	s.Apply("content_width", "")
	s.Apply("unknown_key", "x")

	if s.Footer != "<p>bye</p>" {
		t.Fatalf("footer=%q", s.Footer)
	}
	if s.AccentColor != "#ff0000" {
		t.Fatalf("accent=%q", s.AccentColor)
	}
	if s.ContentWidth != "550" {
		t.Fatalf("empty value must keep default, got %q", s.ContentWidth)
	}
	if s.Header != "" {
		t.Fatalf("header=%q", s.Header)
	}
}

func TestFromAddress(t *testing.T) {
	a := &EmailAccount{Email: "news@example.com"}
	if got := a.FromAddress(); got != "news@example.com" {
		t.Fatalf("got %q", got)
	}
	a.Name = "News"
	if got := a.FromAddress(); got != "News <news@example.com>" {
		t.Fatalf("got %q", got)
	}
}
