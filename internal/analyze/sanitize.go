package analyze

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rfmoraes/clinic-exams/constants"
)

// SanitizeResults normalizes a model payload before strict validation:
// category labels are canonicalized against the fixed vocabulary, numeric
// leaves are coerced to strings, null/empty leaves are dropped, and anything
// that is not an object of objects is discarded. Returns the cleaned JSON and
// the list of keys that were touched.
func SanitizeResults(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	out := make(map[string]map[string]string, len(m))

	for label, v := range m {
		tests, ok := v.(map[string]any)
		if !ok {
			dropped = append(dropped, label+"(shape)")
			continue
		}

		cat, known := constants.Canonicalize(label)
		name := string(cat)
		if !known {
			dropped = append(dropped, label+"->"+name)
		}

		dst, exists := out[name]
		if !exists {
			dst = make(map[string]string, len(tests))
			out[name] = dst
		}

		for test, val := range tests {
			test = strings.TrimSpace(test)
			if test == "" {
				dropped = append(dropped, name+"/(empty-test)")
				continue
			}
			switch t := val.(type) {
			case string:
				s := strings.TrimSpace(t)
				if s == "" || strings.EqualFold(s, "null") {
					dropped = append(dropped, name+"/"+test+"(empty)")
					continue
				}
				dst[test] = s
			case float64:
				if t == float64(int64(t)) {
					dst[test] = fmt.Sprintf("%d", int64(t))
				} else {
					dst[test] = fmt.Sprintf("%g", t)
				}
			case bool:
				dst[test] = fmt.Sprintf("%t", t)
			case nil:
				dropped = append(dropped, name+"/"+test+"(null)")
			default:
				dropped = append(dropped, name+"/"+test+"(type)")
			}
		}
		if len(dst) == 0 {
			delete(out, name)
		}
	}

	cleaned, err := json.Marshal(out)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return cleaned, dropped, nil
}
