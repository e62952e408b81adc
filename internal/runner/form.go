package runner

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// EncodeForm builds an application/x-www-form-urlencoded body.
func EncodeForm(params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	return v.Encode()
}

// EncodePHPForm url-encodes a nested map the way PHP expects it:
// {"user": {"name": "x"}} becomes user[name]=x. Values may be
// strings, numbers, or further maps. Keys are emitted in sorted
// order so bodies are reproducible.
func EncodePHPForm(params map[string]any) string {
	var pairs []string
	encodePHPLevel(params, nil, &pairs)
	return strings.Join(pairs, "&")
}

func encodePHPLevel(m map[string]any, base []string, pairs *[]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := append(append([]string(nil), base...), k)
		if nested, ok := m[k].(map[string]any); ok {
			encodePHPLevel(nested, path, pairs)
			continue
		}

		name := url.QueryEscape(path[0])
		for _, seg := range path[1:] {
			name += "[" + url.QueryEscape(seg) + "]"
		}
		*pairs = append(*pairs, fmt.Sprintf("%s=%s", name, url.QueryEscape(fmt.Sprint(m[k]))))
	}
}
