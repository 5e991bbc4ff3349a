package staticfile

import (
	"fmt"
	"os"
	"time"

	"example.com/kawaii/v2/internal/header"
)

// CacheToken holds the validators derived from a file snapshot.
type CacheToken struct {
	ETag            string // quoted strong entity tag
	LastModified    time.Time
	HasLastModified bool
}

// ComputeCacheToken derives the validators from size and modification time.
// Without a modification time the tag depends on size alone.
func ComputeCacheToken(info os.FileInfo) CacheToken {
	size := info.Size()
	mt := info.ModTime()
	if mt.IsZero() {
		return CacheToken{ETag: fmt.Sprintf(`"%d"`, size)}
	}
	return CacheToken{
		ETag:            fmt.Sprintf(`"%d.%d-%d"`, mt.Unix(), mt.Nanosecond(), size),
		LastModified:    mt,
		HasLastModified: true,
	}
}

// Matches applies strong comparison against If-None-Match. Weak client tags
// never match; "*" always does.
func (t CacheToken) Matches(inm header.IfNoneMatch) bool {
	if !inm.Present || inm.Malformed {
		return false
	}
	if inm.Any {
		return true
	}
	for _, tag := range inm.Tags {
		if !tag.Weak && tag.String() == t.ETag {
			return true
		}
	}
	return false
}
