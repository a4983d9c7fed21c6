// Package paramcodec turns parameter maps into short URL-safe tokens and back.
//
// A token is the nested query string of the map (Rails to_query layout: sorted
// keys, arrays as key[]=v, nested maps as key[sub]=v), zlib-deflated and then
// base64-encoded with the URL-safe alphabet. An empty array is written as a bare
// key[] so it stays distinct from [""]. Decoding accepts padded and unpadded tokens.
package paramcodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"quizapp-service/internal/domain"
)

// MaxDecodedSize bounds the inflated query string.
const MaxDecodedSize = 64 << 10

// ErrInvalidKey is returned by Encode for keys that would not survive a round trip.
var ErrInvalidKey = errors.New("invalid param key")

// Params is a parameter map. Values are string, []string or Params.
type Params map[string]any

// String returns the string value at key, or "" when absent or not a string.
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Strings returns the array value at key.
func (p Params) Strings(key string) []string {
	s, _ := p[key].([]string)
	return s
}

// Map returns the nested map at key.
func (p Params) Map(key string) Params {
	m, _ := p[key].(Params)
	return m
}

// Encode serializes, deflates and base64-encodes params.
func Encode(params Params) (string, error) {
	query, err := ToQuery(params)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte(query)); err != nil {
		return "", fmt.Errorf("deflate params: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("deflate params: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode. Every failure is a *domain.DecodeError.
func Decode(token string) (Params, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(token), "="))
	if err != nil {
		return nil, &domain.DecodeError{Stage: "base64", Err: err}
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &domain.DecodeError{Stage: "inflate", Err: err}
	}
	defer zr.Close()

	inflated, err := io.ReadAll(io.LimitReader(zr, MaxDecodedSize+1))
	if err != nil {
		return nil, &domain.DecodeError{Stage: "inflate", Err: err}
	}
	if len(inflated) > MaxDecodedSize {
		return nil, &domain.DecodeError{Stage: "inflate", Err: errors.New("payload too large")}
	}

	params, err := ParseQuery(string(inflated))
	if err != nil {
		return nil, &domain.DecodeError{Stage: "query", Err: err}
	}
	return params, nil
}

// ToQuery renders params as a nested query string.
func ToQuery(params Params) (string, error) {
	return toQuery(params, "")
}

func toQuery(params Params, namespace string) (string, error) {
	chunks := make([]string, 0, len(params))
	for key, value := range params {
		if key == "" || strings.ContainsAny(key, "[]") {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		name := key
		if namespace != "" {
			name = namespace + "[" + key + "]"
		}
		chunk, err := valueQuery(name, value)
		if err != nil {
			return "", err
		}
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	if !strings.Contains(namespace, "[]") {
		sort.Strings(chunks)
	}
	return strings.Join(chunks, "&"), nil
}

func valueQuery(name string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return url.QueryEscape(name) + "=", nil
	case string:
		return url.QueryEscape(name) + "=" + url.QueryEscape(v), nil
	case int:
		return url.QueryEscape(name) + "=" + strconv.Itoa(v), nil
	case int64:
		return url.QueryEscape(name) + "=" + strconv.FormatInt(v, 10), nil
	case bool:
		return url.QueryEscape(name) + "=" + strconv.FormatBool(v), nil
	case []string:
		if len(v) == 0 {
			return url.QueryEscape(name + "[]"), nil
		}
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, url.QueryEscape(name+"[]")+"="+url.QueryEscape(item))
		}
		return strings.Join(parts, "&"), nil
	case Params:
		return toQuery(v, name)
	case map[string]any:
		return toQuery(Params(v), name)
	default:
		return "", fmt.Errorf("unsupported param type %T for %q", value, name)
	}
}

// ParseQuery parses a nested query string into Params.
func ParseQuery(query string) (Params, error) {
	params := Params{}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, hasValue := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}
		if err := assign(params, key, value, hasValue); err != nil {
			return nil, err
		}
	}
	return params, nil
}

// assign stores value under the bracketed key. A bare key[] without a value
// declares an empty array.
func assign(params Params, key, value string, hasValue bool) error {
	name, rest := splitKey(key)
	if name == "" {
		return fmt.Errorf("malformed key %q", key)
	}

	switch {
	case rest == "":
		if _, ok := params[name].(string); !ok && params[name] != nil {
			return fmt.Errorf("expected string for %q", name)
		}
		params[name] = value
	case rest == "[]":
		existing, ok := params[name]
		if !ok {
			existing = []string{}
		}
		list, ok := existing.([]string)
		if !ok {
			return fmt.Errorf("expected array for %q", name)
		}
		if hasValue {
			list = append(list, value)
		}
		params[name] = list
	case strings.HasPrefix(rest, "[") && !strings.HasPrefix(rest, "[]"):
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return fmt.Errorf("malformed key %q", key)
		}
		child, ok := params[name]
		if !ok {
			child = Params{}
			params[name] = child
		}
		nested, ok := child.(Params)
		if !ok {
			return fmt.Errorf("expected map for %q", name)
		}
		return assign(nested, rest[1:end]+rest[end+1:], value, hasValue)
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	return nil
}

// splitKey separates the leading name from the bracket suffix.
func splitKey(key string) (string, string) {
	i := strings.IndexByte(key, '[')
	if i <= 0 {
		return key, ""
	}
	return key[:i], key[i:]
}
