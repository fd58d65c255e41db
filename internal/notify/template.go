package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"
)

type CodeEmail struct {
	AppName string
	To      string
	Code    string
	TTL     time.Duration
}

func (e CodeEmail) Minutes() int {
	return int(e.TTL / time.Minute)
}

var codeText = template.Must(template.New("code.txt").Parse(`Your {{.AppName}} sign-in code is: {{.Code}}

The code expires in {{.Minutes}} minutes and can be used once.
If you did not request it you can ignore this email.
`))

var codeHTML = htmltemplate.Must(htmltemplate.New("code.html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>{{.AppName}} admin sign-in</h2>
  <p>Your sign-in code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code expires in {{.Minutes}} minutes and can be used once.</p>
  <p style="color: #888; font-size: 12px;">If you did not request it you can ignore this email.</p>
</body>
</html>
`))

// RenderCode builds the sign-in code email.
func RenderCode(data CodeEmail) (Message, error) {
	var text, html bytes.Buffer
	if err := codeText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := codeHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	return Message{
		To:      data.To,
		Subject: fmt.Sprintf("Your %s sign-in code", data.AppName),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
