package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// maxPayloadLen bounds how much of an inline media payload ends up in a log line.
const maxPayloadLen = 64

type keyClass int

const (
	keyPlain keyClass = iota
	keyPayload
	keySecret
	keyHashed
)

// Generated images and audio travel as base64 strings or raw bytes.
var payloadKeys = map[string]bool{
	"image":           true,
	"audio":           true,
	"data":            true,
	"inline_data":     true,
	"payload":         true,
	"generated_image": true,
}

var secretFragments = []string{"token", "authorization", "password", "secret", "api_key", "apikey", "dsn"}

var hashedFragments = []string{"redis_addr", "session_id"}

func classify(key string) keyClass {
	key = strings.ToLower(strings.TrimSpace(key))
	switch {
	case key == "":
		return keyPlain
	case payloadKeys[key]:
		return keyPayload
	case containsAny(key, secretFragments):
		return keySecret
	case containsAny(key, hashedFragments):
		return keyHashed
	}
	return keyPlain
}

func containsAny(s string, frags []string) bool {
	for _, f := range frags {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := toString(kv[i])
		out = append(out, key, sanitizeValue(classify(key), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func sanitizeValue(class keyClass, val interface{}) interface{} {
	switch class {
	case keyPayload:
		return truncatePayload(val)
	case keySecret:
		if toString(val) == "" {
			return ""
		}
		return "[REDACTED]"
	case keyHashed:
		return shortHash(toString(val))
	default:
		return val
	}
}

func truncatePayload(val interface{}) interface{} {
	switch v := val.(type) {
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	case string:
		if len(v) <= maxPayloadLen {
			return v
		}
		return fmt.Sprintf("%s...(%d chars)", v[:maxPayloadLen], len(v))
	default:
		return val
	}
}

func shortHash(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
