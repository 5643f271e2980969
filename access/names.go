package access

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns name in NFC form with surrounding space trimmed, so
// names read through different query paths compare equal.
func NormalizeName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// StripAccelerator removes a single accelerator marker from a menu item
// label: "&File" becomes "File" and "Save &As" becomes "Save As".
// An escaped "&&" is left alone.
func StripAccelerator(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] != '&' {
			continue
		}
		if i+1 < len(name) && name[i+1] == '&' {
			i++
			continue
		}
		return name[:i] + name[i+1:]
	}
	return name
}

// Filter drops focus snapshots from element classes known to report
// unreliable names. The lists are application tuning data.
type Filter struct {
	IgnoreClasses       []string
	IgnoreAutomationIDs []string
}

// Allows reports whether snap should be announced.
func (f Filter) Allows(snap FocusSnapshot) bool {
	if snap.ClassName != "" && slices.Contains(f.IgnoreClasses, snap.ClassName) {
		return false
	}
	if snap.AutomationID != "" && slices.Contains(f.IgnoreAutomationIDs, snap.AutomationID) {
		return false
	}
	return strings.IndexFunc(snap.DisplayName, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
}
