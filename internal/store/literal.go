package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fangwd/restup/internal/record"
)

// ErrUnsupportedValue is returned for values that have no SQL literal form.
var ErrUnsupportedValue = errors.New("unsupported value")

// literalStyle holds the per-dialect pieces of literal rendering.
type literalStyle struct {
	quote   func(string) string
	boolean func(bool) string
}

func (ls literalStyle) render(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return ls.quote(val), nil
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'", nil
	case json.Number:
		if !isNumber(string(val)) {
			return "", fmt.Errorf("%w: number %q", ErrUnsupportedValue, string(val))
		}
		return string(val), nil
	case bool:
		return ls.boolean(val), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case time.Time:
		return ls.quote(val.UTC().Format(record.TimeLayout)), nil
	case map[string]any, []any, record.Row:
		data, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnsupportedValue, err)
		}
		return ls.quote(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// isNumber reports whether s is a JSON number literal.
func isNumber(s string) bool {
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) {
		return false
	}
	return json.Valid([]byte(s)) && strings.TrimSpace(s) == s
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// quoteStandard doubles single quotes (SQL standard, SQLite).
func quoteStandard(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var mysqlEscaper = strings.NewReplacer(
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\b", `\b`,
	"\t", `\t`,
	"\x1a", `\Z`,
	"'", `\'`,
	`"`, `\"`,
	`\`, `\\`,
)

// quoteMySQL escapes the way the MySQL client library does.
func quoteMySQL(s string) string {
	return "'" + mysqlEscaper.Replace(s) + "'"
}

func quoteIdentWith(q byte, name string) string {
	s := string(q)
	return s + strings.ReplaceAll(name, s, s+s) + s
}
