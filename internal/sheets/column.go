package sheets

// DecodeColumnID turns a spreadsheet column letter ("A", "Z", "AA", ...) into
// a zero based cell index. Letters are a bijective base-26 numeral, so A=1,
// Z=26, AA=27 before the final -1. Lower case letters are accepted.
func DecodeColumnID(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	n := 0
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z':
			n = n*26 + int(r-'A'+1)
		case r >= 'a' && r <= 'z':
			n = n*26 + int(r-'a'+1)
		default:
			return 0, false
		}
		if n > maxColumns {
			return 0, false
		}
	}
	return n - 1, true
}

// Google Sheets caps a sheet at 18278 columns (ZZZ).
const maxColumns = 18278
