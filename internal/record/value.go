package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TimeLayout is the textual form used for time values in keys and SQL literals.
const TimeLayout = "2006-01-02 15:04:05.999999999"

// KeyString renders a value in the type-agnostic, case-normalised form used
// for key comparison. It returns false for nil, which has no string form.
func KeyString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		// Casers are stateful; one per call keeps KeyString goroutine safe.
		return cases.Fold().String(norm.NFC.String(val)), true
	case []byte:
		return string(val), true
	case json.Number:
		return numberString(string(val)), true
	case bool:
		if val {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.FormatInt(int64(val), 10), true
	case int8:
		return strconv.FormatInt(int64(val), 10), true
	case int16:
		return strconv.FormatInt(int64(val), 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint8:
		return strconv.FormatUint(uint64(val), 10), true
	case uint16:
		return strconv.FormatUint(uint64(val), 10), true
	case uint32:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return floatString(float64(val)), true
	case float64:
		return floatString(val), true
	case time.Time:
		return val.UTC().Format(TimeLayout), true
	default:
		return fmt.Sprint(val), true
	}
}

// Equal compares two values by their key string form. Two nils are equal.
func Equal(a, b any) bool {
	as, aok := KeyString(a)
	bs, bok := KeyString(b)
	if !aok || !bok {
		return aok == bok
	}
	return as == bs
}

// numberString canonicalises JSON number text so "12", "12.0" and "1.2e1"
// agree with the int64 12 a driver returns.
func numberString(s string) string {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return floatString(f)
}

func floatString(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
