package dataset

import (
	"strconv"
	"strings"
	"time"
)

// Key encodes values into a comparable string. Each value is written as
// a type tag, its payload length and the payload, so that values
// containing separators cannot collide.
func Key(values ...any) string {
	var b strings.Builder
	for _, v := range values {
		var tag byte
		var payload string
		switch x := v.(type) {
		case nil:
			tag = 'n'
		case int64:
			tag, payload = 'i', strconv.FormatInt(x, 10)
		case float64:
			tag, payload = 'f', strconv.FormatFloat(x, 'g', -1, 64)
		case string:
			tag, payload = 's', x
		case time.Time:
			tag, payload = 'd', x.UTC().Format(time.RFC3339Nano)
		default:
			tag, payload = 'x', Format(x)
		}
		b.WriteByte(tag)
		b.WriteString(strconv.Itoa(len(payload)))
		b.WriteByte(':')
		b.WriteString(payload)
	}
	return b.String()
}

// RecordKey encodes the named columns of a record.
func RecordKey(rec Record, columns []string) string {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = rec[c]
	}
	return Key(values...)
}
