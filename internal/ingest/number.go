package ingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Number decodes the numeric cells of marketplace exports: currency symbols,
// thousands separators and percent signs are dropped, a blank or "-" cell is
// zero, and an accounting-style "(12.50)" is negative.
type Number float64

// UnmarshalCSV implements csvutil.Unmarshaler.
func (n *Number) UnmarshalCSV(b []byte) error {
	v, err := parseNumber(string(b))
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

var numberCleaner = strings.NewReplacer(
	"฿", "",
	"$", "",
	"THB", "",
	"thb", "",
	",", "",
	"%", "",
	" ", "",
	"\u00a0", "",
)

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	clean := numberCleaner.Replace(s)
	if clean == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("ingest: %q is not a number", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}
