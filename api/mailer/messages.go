package mailer

import (
	"fmt"
	"strings"
	"time"

	"github.com/efir-portal/efir-api/models"
	templates "github.com/efir-portal/efir-api/templates/html"
)

const timeLayout = "02 Jan 2006 15:04 MST"

// Reference is the short FIR number shown to people: the last six
// characters of the id, upper-cased
func Reference(fir models.Fir) string {
	hex := fir.ID.Hex()
	return strings.ToUpper(hex[len(hex)-6:])
}

// StatusUpdate builds the mail telling a complainant that their FIR changed
// status. officer may be nil.
func StatusUpdate(fir models.Fir, complainant models.User, officer *models.User) Message {
	ref := Reference(fir)
	subject := fmt.Sprintf("Update on FIR #%s - %s", ref, fir.Status)

	data := templates.StatusUpdate{
		Name:      complainant.Name,
		Reference: ref,
		Status:    string(fir.Status),
		UpdatedAt: fir.UpdatedAt.Format(timeLayout),
	}
	if officer != nil {
		data.Officer = officer.Name
	}

	text := fmt.Sprintf("Dear %s,\n\nThe status of your FIR #%s has been updated to %s.", complainant.Name, ref, fir.Status)

	return Message{
		ToName:    complainant.Name,
		ToAddress: complainant.Email,
		Subject:   subject,
		PlainText: text,
		HTML:      templates.RenderStatusUpdateEmail(subject, data),
	}
}

// Digest builds the daily staff summary addressed to admin
func Digest(admin models.User, pendingOfficers int64, stale []models.Fir, staleAfter time.Duration) Message {
	subject := fmt.Sprintf("E-FIR daily digest - %d pending officer(s), %d stale FIR(s)", pendingOfficers, len(stale))

	data := templates.Digest{PendingOfficers: pendingOfficers, StaleAfter: staleAfter.String()}
	var text strings.Builder
	fmt.Fprintf(&text, "%d officer account(s) are waiting for approval.\n", pendingOfficers)
	fmt.Fprintf(&text, "%d FIR(s) have been pending for more than %s.\n", len(stale), staleAfter)
	for _, f := range stale {
		data.Stale = append(data.Stale, templates.StaleFir{
			Reference:    Reference(f),
			IncidentType: string(f.IncidentType),
			City:         f.City,
			FiledAt:      f.CreatedAt.Format(timeLayout),
		})
		fmt.Fprintf(&text, "#%s %s %s\n", Reference(f), f.IncidentType, f.City)
	}

	return Message{
		ToName:    admin.Name,
		ToAddress: admin.Email,
		Subject:   subject,
		PlainText: text.String(),
		HTML:      templates.RenderDigestEmail(subject, data),
	}
}

// OfficerApproved tells an officer that an admin activated their account
func OfficerApproved(officer models.User) Message {
	subject := "Your E-FIR officer account is active"
	text := fmt.Sprintf("Dear %s,\n\nYour account (badge %s) has been approved. You can now log in with your badge ID.", officer.Name, officer.BadgeID)
	return Message{
		ToName:    officer.Name,
		ToAddress: officer.Email,
		Subject:   subject,
		PlainText: text,
		HTML:      templates.RenderGenericEmail(subject, text),
	}
}
