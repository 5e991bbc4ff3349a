package header

import (
	"strconv"
	"strings"
)

// Coding is one element of an Accept-Encoding list.
type Coding struct {
	Name         string
	QualityValue float32
}

// AcceptEncoding is the parsed Accept-Encoding header, codings in client order.
type AcceptEncoding struct {
	Present bool
	Raw     string
	Codings []Coding
}

// ParseAcceptEncoding parses the field values of Accept-Encoding. Elements with
// an empty coding are dropped; an unparsable q parameter counts as 1.
func ParseAcceptEncoding(values []string) AcceptEncoding {
	ae := AcceptEncoding{Present: len(values) > 0, Raw: strings.Join(values, ", ")}
	for _, v := range values {
		for _, element := range strings.Split(v, ",") {
			name, params, _ := strings.Cut(element, ";")
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			ae.Codings = append(ae.Codings, Coding{Name: name, QualityValue: parseQuality(params)})
		}
	}
	return ae
}

func parseQuality(params string) float32 {
	for _, p := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
		if err != nil || q < 0 || q > 1 {
			return 1
		}
		return float32(q)
	}
	return 1
}

// Contains reports whether the client listed the named coding. Quality values
// are not consulted.
func (ae AcceptEncoding) Contains(name string) bool {
	for _, c := range ae.Codings {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}
