// Package notify renders issued prescriptions as human-readable dispatch
// messages suitable for a chat or SMS channel.
//
// Formatting is pure: no I/O, no clock, no ambient locale. Numbers go through
// a golang.org/x/text/message printer pinned to English so "1,250.00" renders
// the same on every host.
package notify

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/orchard/internal/domain"
)

// CurrencyPrefix precedes every amount in a dispatch message.
const CurrencyPrefix = "Rs."

// shortIDLen is the number of id characters shown in a dispatch message.
const shortIDLen = 8

// printer is safe for concurrent use; it holds no per-call state.
var printer = message.NewPrinter(language.English)

// FormatDispatchMessage renders p for the grower. The output has a fixed
// section order: facility and doctor, prescription id and issue date, grower,
// diagnosis, recommendation, numbered action items, total, follow-up.
func FormatDispatchMessage(p domain.Prescription, growerName, growerPhone string) string {
	var b strings.Builder

	facility := fallback(p.HospitalName, "Orchard Advisory")
	b.WriteString("*" + facility + "*\n")
	if p.DoctorName != "" {
		b.WriteString(p.DoctorName + "\n")
	}
	b.WriteString("\n")

	b.WriteString("Prescription #" + ShortID(p.ID) + "\n")
	b.WriteString("Issued: " + fallback(p.IssuedOn.String(), "-") + "\n")
	b.WriteString("\n")

	grower := fallback(growerName, "-")
	if growerPhone != "" {
		grower += " (" + growerPhone + ")"
	}
	b.WriteString("Grower: " + grower + "\n")
	b.WriteString("\n")

	diagnosis := fallback(p.IssueDiagnosed, "-")
	if p.EPPOCode != "" {
		diagnosis += " [EPPO: " + p.EPPOCode + "]"
	}
	b.WriteString("Diagnosis: " + diagnosis + "\n")
	b.WriteString("Recommendation: " + fallback(p.Recommendation, "-") + "\n")
	b.WriteString("\n")

	if len(p.ActionItems) == 0 {
		b.WriteString("Action items: none\n")
	} else {
		b.WriteString("Action items:\n")
		for i, item := range p.ActionItems {
			printer.Fprintf(&b, "%d. [%s] %s", i+1, item.Category, item.ProductName)
			if item.Dosage != "" {
				b.WriteString(" - " + item.Dosage)
			}
			b.WriteString(" - " + FormatAmount(item.EstimatedCost) + "\n")
		}
	}
	b.WriteString("\n")

	b.WriteString("Total estimated cost: " + FormatAmount(p.TotalCost()) + "\n")
	b.WriteString("Follow-up: " + fallback(p.FollowUpOn.String(), "not scheduled") + "\n")

	return b.String()
}

// FormatAmount renders v with two decimals and English digit grouping.
func FormatAmount(v float64) string {
	return CurrencyPrefix + " " + printer.Sprintf("%.2f", v)
}

// ShortID returns the last eight alphanumeric characters of id, upper-cased.
// UUIDv7 ids lead with a millisecond timestamp, so the tail carries the
// random bits that tell prescriptions apart.
func ShortID(id string) string {
	var alnum []rune
	for _, r := range id {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alnum = append(alnum, r)
		}
	}
	if len(alnum) > shortIDLen {
		alnum = alnum[len(alnum)-shortIDLen:]
	}
	return strings.ToUpper(string(alnum))
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
