// Package bookingref generates and normalizes booking reference identifiers.
// The reference is the idempotency key for event-store writes and the
// correlation key between the event store and the ledger, so generation must
// be stable across retries and comparison must tolerate imperfect transcription
// (case, spacing, Unicode dash variants).
package bookingref

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

// Reference is a canonical booking reference, e.g. "4F2-A9C".
type Reference string

// Generate derives the reference for a booking intent. When the caller
// supplies an idempotency key the reference is a pure function of that key,
// so a retry carrying the same key resolves to the same reference no matter
// how the rest of the payload was re-typed. Without a key the reference is
// derived from the booking tuple itself, which makes an identical duplicate
// submission land on the same reference too.
func Generate(appointmentType, patientName, patientContact string, r interval.TimeRange, idempotencyKey string) Reference {
	seed := strings.TrimSpace(idempotencyKey)
	if seed == "" {
		seed = fmt.Sprintf("%s|%s|%s|%s",
			patientName, patientContact, r.Start.UTC().Format(time.RFC3339), appointmentType)
	}

	sum := sha1.Sum([]byte(seed))
	h := strings.ToUpper(hex.EncodeToString(sum[:]))[:6]
	return Reference(h[:3] + "-" + h[3:])
}

// Normalize canonicalizes a raw reference: trims whitespace, upper-cases,
// folds Unicode dash variants to ASCII hyphen, and collapses hyphen runs.
// Normalize is idempotent.
func Normalize(raw string) Reference {
	s := strings.ToUpper(strings.TrimSpace(raw))

	var b strings.Builder
	b.Grow(len(s))
	prevHyphen := false
	for _, r := range s {
		if isDash(r) {
			if !prevHyphen {
				b.WriteByte('-')
			}
			prevHyphen = true
			continue
		}
		prevHyphen = false
		b.WriteRune(r)
	}
	return Reference(b.String())
}

// Equal compares two raw references by normalized form.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// isDash reports whether r is any of the dash characters people end up with
// when a reference is read back over the phone or pasted from a document:
// hyphen, hyphen bullet, non-breaking hyphen, figure dash, en dash, em dash,
// horizontal bar, and the minus sign.
func isDash(r rune) bool {
	switch r {
	case '-', '‐', '‑', '‒', '–', '—', '―', '−':
		return true
	}
	return false
}
