package org

import "strings"

// Slugify derives a stable identity from a heading title: lowercased,
// runs of non-alphanumerics collapsed to single hyphens, leading and
// trailing hyphens stripped.
//
// Example:
//
//	Slugify("Add user authentication!") == "add-user-authentication"
func Slugify(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	prevHyphen := true // swallow leading separators
	for _, r := range strings.ToLower(title) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			prevHyphen = false
			continue
		}
		if !prevHyphen {
			b.WriteByte('-')
			prevHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
