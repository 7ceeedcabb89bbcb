package templates

import (
	"fmt"
	"html"
	"strings"
)

// StatusUpdate is the data shown in a FIR status change email
type StatusUpdate struct {
	Name      string
	Reference string
	Status    string
	Officer   string
	UpdatedAt string
}

// RenderStatusUpdateEmail renders the mail sent to a complainant when the
// status of their FIR changes
func RenderStatusUpdateEmail(subject string, u StatusUpdate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Dear %s,</p>", html.EscapeString(u.Name))
	fmt.Fprintf(&b, "<p>The status of your FIR <strong>#%s</strong> has been updated.</p>", html.EscapeString(u.Reference))
	b.WriteString("<table>")
	row(&b, "New status", u.Status)
	if u.Officer != "" {
		row(&b, "Handled by", u.Officer)
	}
	row(&b, "Updated at", u.UpdatedAt)
	b.WriteString("</table>")
	b.WriteString("<p>You can follow the progress of your complaint from your dashboard.</p>")
	return renderLayout(subject, b.String())
}

// StaleFir is a single line of the staff digest
type StaleFir struct {
	Reference    string
	IncidentType string
	City         string
	FiledAt      string
}

// Digest is the data shown in the daily staff digest
type Digest struct {
	PendingOfficers int64
	StaleAfter      string
	Stale           []StaleFir
}

// RenderDigestEmail renders the daily summary sent to admins
func RenderDigestEmail(subject string, d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p><strong>%d</strong> officer account(s) are waiting for approval.</p>", d.PendingOfficers)
	if len(d.Stale) == 0 {
		fmt.Fprintf(&b, "<p>No FIR has been pending for more than %s.</p>", html.EscapeString(d.StaleAfter))
		return renderLayout(subject, b.String())
	}

	fmt.Fprintf(&b, "<p>%d FIR(s) have been pending for more than %s:</p>", len(d.Stale), html.EscapeString(d.StaleAfter))
	b.WriteString("<table>")
	for _, f := range d.Stale {
		fmt.Fprintf(&b, "<tr><td>#%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			html.EscapeString(f.Reference),
			html.EscapeString(f.IncidentType),
			html.EscapeString(f.City),
			html.EscapeString(f.FiledAt))
	}
	b.WriteString("</table>")
	return renderLayout(subject, b.String())
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>", html.EscapeString(label), html.EscapeString(value))
}
