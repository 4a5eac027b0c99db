package email

import (
	"strings"
	"text/template"

	"EmailBlaster/internal/models"
)

// Operator-authored header, footer and body are trusted HTML and inserted as is.
var layout = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; background-color: {{.S.BodyBgColor}};">
  <table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="background-color: {{.S.BodyBgColor}};">
    <tr>
      <td align="center" style="padding: {{.S.ContentMargin}}px 0;">
        {{.S.Header}}
        <table role="presentation" width="{{.S.ContentWidth}}" cellpadding="0" cellspacing="0" style="background-color: {{.S.ContentBgColor}}; border-radius: {{.S.ContentBorderRadius}}px;">
          <tr>
            <td style="padding: {{.S.ContentPadding}}px;">
              {{.Body}}
            </td>
          </tr>
        </table>
        {{.Footer}}
      </td>
    </tr>
  </table>
</body>
</html>`))

var unsubscribeBlock = template.Must(template.New("unsubscribe").Parse(`
        <table role="presentation" width="{{.S.ContentWidth}}" cellpadding="0" cellspacing="0" style="margin-top: 10px;">
          <tr>
            <td align="center" style="padding: 15px 0; font-size: 12px; color: #666;">
              <a href="{{.URL}}" style="color: {{.S.AccentColor}}; text-decoration: underline;">Unsubscribe</a> from this mailing list
            </td>
          </tr>
        </table>`))

// Compose wraps a rendered body into the full HTML document described by s.
// When the footer has no unsubscribe link of its own, one pointing at
// unsubscribeURL is appended below it.
func Compose(body string, s models.EmailSettings, unsubscribeURL string) string {
	footer := s.Footer
	if !HasUnsubscribe(footer) {
		var b strings.Builder
		b.WriteString(footer)
		execute(unsubscribeBlock, &b, struct {
			S   models.EmailSettings
			URL string
		}{s, unsubscribeURL})
		footer = b.String()
	}

	var b strings.Builder
	execute(layout, &b, struct {
		S      models.EmailSettings
		Body   string
		Footer string
	}{s, body, footer})
	return b.String()
}

func HasUnsubscribe(footer string) bool {
	return strings.Contains(strings.ToLower(footer), "unsubscribe")
}

// Both templates only reference fields that exist, and strings.Builder never
// fails a write, so Execute cannot return an error here.
func execute(t *template.Template, b *strings.Builder, data any) {
	if err := t.Execute(b, data); err != nil {
		panic("email: " + err.Error())
	}
}
