package header

import "strings"

// EntityTag is an opaque validator. Opaque excludes the surrounding quotes.
type EntityTag struct {
	Opaque string
	Weak   bool
}

func (t EntityTag) String() string {
	if t.Weak {
		return `W/"` + t.Opaque + `"`
	}
	return `"` + t.Opaque + `"`
}

// IfNoneMatch is the parsed If-None-Match header.
//
// A malformed header keeps Present set but has no tags and Any unset, so it
// never matches anything.
type IfNoneMatch struct {
	Present   bool
	Malformed bool
	Any       bool
	Tags      []EntityTag
}

// ParseIfNoneMatch parses the field values of If-None-Match: either "*" or a
// comma separated list of entity tags.
func ParseIfNoneMatch(values []string) IfNoneMatch {
	if len(values) == 0 {
		return IfNoneMatch{}
	}
	raw := strings.TrimSpace(strings.Join(values, ","))
	if raw == "*" {
		return IfNoneMatch{Present: true, Any: true}
	}

	m := IfNoneMatch{Present: true}
	s := raw
	for {
		s = strings.TrimLeft(s, " \t,")
		if s == "" {
			break
		}
		tag, rest, ok := scanEntityTag(s)
		if !ok {
			return IfNoneMatch{Present: true, Malformed: true}
		}
		m.Tags = append(m.Tags, tag)
		s = strings.TrimLeft(rest, " \t")
		if s != "" && s[0] != ',' {
			return IfNoneMatch{Present: true, Malformed: true}
		}
	}
	if len(m.Tags) == 0 {
		return IfNoneMatch{Present: true, Malformed: true}
	}
	return m
}

// scanEntityTag reads one entity-tag from the start of s.
func scanEntityTag(s string) (EntityTag, string, bool) {
	var tag EntityTag
	if strings.HasPrefix(s, "W/") {
		tag.Weak = true
		s = s[2:]
	}
	if len(s) < 2 || s[0] != '"' {
		return EntityTag{}, "", false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			tag.Opaque = s[1:i]
			return tag, s[i+1:], true
		case c == 0x21 || (c >= 0x23 && c <= 0x7e) || c >= 0x80:
		default:
			return EntityTag{}, "", false
		}
	}
	return EntityTag{}, "", false
}
