package llm

import "errors"

// ErrNoJSON is returned by ExtractJSON when no balanced brace substring
// is found in the input.
var ErrNoJSON = errors.New("llm: no balanced JSON object found in response")

// ExtractJSON locates the first balanced `{...}` substring in s and
// returns it. Model responses routinely wrap their JSON in prose or
// markdown fences; this scans past all of that rather than assuming the
// response is bare JSON.
func ExtractJSON(s string) (string, error) {
	start := -1
	depth := 0

	for i, r := range s {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}

			depth++
		case '}':
			if depth == 0 {
				continue
			}

			depth--

			if depth == 0 && start >= 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSON
}
