// Package caldav renders iCalendar (RFC 5545) events and stores them on a
// CalDAV collection such as iCloud Calendar.
package caldav

import (
	"fmt"
	"strings"
	"time"
)

const ProdID = "-//Clinic//Appointment System//EN"

type Person struct {
	Name  string
	Email string
}

type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Organizer   *Person
	Attendees   []Person
}

const stampLayout = "20060102T150405Z"

// Render produces a VCALENDAR holding one VEVENT, CRLF-terminated with
// lines folded at 75 octets.
func Render(ev Event, now time.Time) string {
	stamp := now.UTC().Format(stampLayout)

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + ProdID,
		"CALSCALE:GREGORIAN",
		"BEGIN:VEVENT",
		"UID:" + escapeText(ev.UID),
		"SUMMARY:" + escapeText(ev.Summary),
	}
	if ev.Description != "" {
		lines = append(lines, "DESCRIPTION:"+escapeText(ev.Description))
	}
	if ev.Location != "" {
		lines = append(lines, "LOCATION:"+escapeText(ev.Location))
	}
	lines = append(lines,
		"DTSTART:"+ev.Start.UTC().Format(stampLayout),
		"DTEND:"+ev.End.UTC().Format(stampLayout),
		"DTSTAMP:"+stamp,
		"CREATED:"+stamp,
		"LAST-MODIFIED:"+stamp,
	)
	if ev.Organizer != nil && ev.Organizer.Email != "" {
		lines = append(lines, fmt.Sprintf("ORGANIZER;CN=%s:mailto:%s", paramValue(ev.Organizer.Name), ev.Organizer.Email))
	}
	for _, a := range ev.Attendees {
		if a.Email == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf(
			"ATTENDEE;CN=%s;ROLE=REQ-PARTICIPANT;PARTSTAT=NEEDS-ACTION;RSVP=TRUE:mailto:%s",
			paramValue(a.Name), a.Email))
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(fold(l))
		b.WriteString("\r\n")
	}
	return b.String()
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

func escapeText(s string) string { return textEscaper.Replace(s) }

// paramValue quotes parameter values carrying separators.
func paramValue(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	if strings.ContainsAny(s, ";:,") {
		return `"` + s + `"`
	}
	return s
}

// fold splits a content line into 75-octet chunks without breaking a UTF-8
// sequence; continuation lines start with a single space.
func fold(line string) string {
	const limit = 75
	if len(line) <= limit {
		return line
	}
	var b strings.Builder
	width := limit
	for len(line) > width {
		cut := width
		for cut > 0 && !utf8Start(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		width = limit - 1
	}
	b.WriteString(line)
	return b.String()
}

func utf8Start(c byte) bool { return c&0xC0 != 0x80 }
