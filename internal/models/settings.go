package models

// EmailSettings controls the HTML wrapper every outbound campaign email is composed into.
type EmailSettings struct {
	Header              string `json:"email_header"`
	Footer              string `json:"email_footer"`
	BodyBgColor         string `json:"body_background_color"`
	ContentBgColor      string `json:"content_background_color"`
	AccentColor         string `json:"accent_color"`
	ContentWidth        string `json:"content_width"`
	ContentPadding      string `json:"content_padding"`
	ContentBorderRadius string `json:"content_border_radius"`
	ContentMargin       string `json:"content_margin"`
}

func DefaultEmailSettings() EmailSettings {
	return EmailSettings{
		BodyBgColor:         "#f5f7fa",
		ContentBgColor:      "#ffffff",
		AccentColor:         "#1a73e8",
		ContentWidth:        "550",
		ContentPadding:      "30",
		ContentBorderRadius: "8",
		ContentMargin:       "20",
	}
}

// Apply sets the field stored under key. Empty values keep the current
// value, unknown keys are ignored.
func (s *EmailSettings) Apply(key, value string) {
	if value == "" {
		return
	}
	switch key {
	case "email_header":
		s.Header = value
	case "email_footer":
		s.Footer = value
	case "body_background_color":
		s.BodyBgColor = value
	case "content_background_color":
		s.ContentBgColor = value
	case "accent_color":
		s.AccentColor = value
	case "content_width":
		s.ContentWidth = value
	case "content_padding":
		s.ContentPadding = value
	case "content_border_radius":
		s.ContentBorderRadius = value
	case "content_margin":
		s.ContentMargin = value
	}
}
