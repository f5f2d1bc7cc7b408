package model

import "strings"

// validStates holds the two-letter jurisdiction codes accepted on applications
// and in policy exclusion lists: the 50 states plus DC.
var validStates = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {}, "DE": {},
	"DC": {}, "FL": {}, "GA": {}, "HI": {}, "ID": {}, "IL": {}, "IN": {}, "IA": {},
	"KS": {}, "KY": {}, "LA": {}, "ME": {}, "MD": {}, "MA": {}, "MI": {}, "MN": {},
	"MS": {}, "MO": {}, "MT": {}, "NE": {}, "NV": {}, "NH": {}, "NJ": {}, "NM": {},
	"NY": {}, "NC": {}, "ND": {}, "OH": {}, "OK": {}, "OR": {}, "PA": {}, "RI": {},
	"SC": {}, "SD": {}, "TN": {}, "TX": {}, "UT": {}, "VT": {}, "VA": {}, "WA": {},
	"WV": {}, "WI": {}, "WY": {},
}

// NormalizeState trims and upper-cases a state code.
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsValidState reports whether code is a known, already-normalized state code.
func IsValidState(code string) bool {
	_, ok := validStates[code]
	return ok
}
