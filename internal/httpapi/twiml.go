package httpapi

import "strings"

// twimlEscaper covers the five XML-special characters a message body may
// carry.
var twimlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// renderTwiML wraps a reply in the TwiML envelope Twilio expects, with the
// message body entity-escaped.
func renderTwiML(message string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<Response><Message>")
	b.WriteString(twimlEscaper.Replace(message))
	b.WriteString("</Message></Response>")
	return b.String()
}
