package api

import (
	"fmt"
	"strings"

	"github.com/carebook/booking-engine/internal/booking"
)

const icsTimeLayout = "20060102T150405Z"

// renderICS produces a minimal single-event iCalendar file for the
// appointment, suitable for "add to calendar" links.
func renderICS(appt *booking.Appointment) string {
	var b strings.Builder

	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//carebook//booking-engine//EN\r\n")
	b.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(&b, "UID:%s@carebook\r\n", appt.ID)
	fmt.Fprintf(&b, "DTSTAMP:%s\r\n", appt.CreatedAt.UTC().Format(icsTimeLayout))
	fmt.Fprintf(&b, "DTSTART:%s\r\n", appt.StartAt.UTC().Format(icsTimeLayout))
	fmt.Fprintf(&b, "DTEND:%s\r\n", appt.EndAt.UTC().Format(icsTimeLayout))
	fmt.Fprintf(&b, "SUMMARY:%s\r\n", icsEscape("Appointment for "+appt.Patient.Name))
	if appt.Status == booking.StatusCancelled {
		b.WriteString("STATUS:CANCELLED\r\n")
	} else {
		b.WriteString("STATUS:CONFIRMED\r\n")
	}
	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")

	return b.String()
}

func icsEscape(s string) string {
	r := strings.NewReplacer("\\", "\\\\", ";", "\\;", ",", "\\,", "\n", "\\n")
	return r.Replace(s)
}
