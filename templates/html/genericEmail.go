package templates

import (
	"fmt"
	"html"
	"strings"
)

// RenderGenericEmail wraps plain text in the portal's branded layout.
// The subject is shown in the banner, bodyContent is escaped and its
// newlines become <br> tags.
func RenderGenericEmail(subject, bodyContent string) string {
	escaped := html.EscapeString(bodyContent)
	return renderLayout(subject, strings.ReplaceAll(escaped, "\n", "<br>"))
}

// renderLayout expects bodyHTML to be escaped already
func renderLayout(subject, bodyHTML string) string {
	safeSubject := html.EscapeString(subject)

	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, minimum-scale=1, maximum-scale=1">
  <title>%s</title>
  <style type="text/css">
    body { font-family: Arial, Helvetica, sans-serif; margin: 0; padding: 0; background-color: #f3f4f6; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border: 1px solid #e5e7eb; }
    .header { background-color: #1e3a8a; padding: 28px 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 22px; font-weight: 700; }
    .content { padding: 30px; color: #1f2937; line-height: 1.6; font-size: 15px; }
    .content table { border-collapse: collapse; width: 100%%; }
    .content td { padding: 6px 8px; border-bottom: 1px solid #e5e7eb; }
    .footer { padding: 20px 30px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid #e5e7eb; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      %s
    </div>
    <div class="footer">
      <p>This is an automated message from the E-FIR Portal. Please do not reply.</p>
    </div>
  </div>
</body>
</html>`, safeSubject, safeSubject, bodyHTML)
}
