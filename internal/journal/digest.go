package journal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/twinsync/twinsync/internal/bridge"
)

// Domain prefix for content-addressed tick digests. The version suffix
// enables future algorithm migration without colliding with old rows.
const digestDomain = "twinsync/tick/v1"

// TickDigest computes a canonical, content-addressed digest of a tick
// record. Two ticks with the same sequence, mirror count, and event list
// produce the same digest regardless of wall-clock elapsed time, so runs
// over the same scenario can be diffed row by row.
func TickDigest(rec bridge.TickRecord) (string, error) {
	events := make([]any, len(rec.Events))
	for i, ev := range rec.Events {
		events[i] = map[string]any{
			"kind":      string(ev.Kind),
			"direction": string(ev.Direction),
			"source":    string(ev.Source),
			"mirror":    string(ev.Mirror),
			"landmark":  string(ev.Landmark),
			"detail":    ev.Detail,
		}
	}
	obj := map[string]any{
		"seq":      rec.Seq,
		"mirrored": int64(rec.Mirrored),
		"events":   events,
	}

	data, err := marshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("tick digest: %w", err)
	}

	// SHA256(domain + 0x00 + data); the null byte prevents boundary
	// ambiguity between domain and payload.
	h := sha256.New()
	h.Write([]byte(digestDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// marshalCanonical serializes the digest value tree to RFC 8785-style
// canonical JSON: object keys sorted by UTF-16 code units, strings NFC
// normalized, no HTML escaping, integers only.
func marshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case string:
		return writeCanonicalString(buf, val)
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case bool:
		buf.WriteString(strconv.FormatBool(val))
		return nil
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessUTF16(keys[i], keys[j]) })
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("unsupported type: %T", v)
	}
}

// writeCanonicalString appends a JSON string with NFC normalization applied
// at the serialization boundary and HTML escaping disabled.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	out := tmp.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	buf.Write(out)
	return nil
}

// lessUTF16 orders strings by their UTF-16 code unit sequences, the key
// ordering RFC 8785 requires (it differs from byte order for characters
// outside the basic multilingual plane).
func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
