package drive

import (
	"fmt"
	"strings"
	"time"
)

// EventFolderName names the per-batch folder on Drive.
func EventFolderName(batchName string, createdAt time.Time) string {
	return sanitizeName(fmt.Sprintf("%s_%s", batchName, createdAt.Format("20060102")))
}

// PersonFolderName names a person's subfolder according to the configured
// format. Unknown formats fall back to FirstName_LastName rather than
// failing a whole batch over a config typo.
func PersonFolderName(format, firstName, lastName string) string {
	var name string
	switch format {
	case "LastName_FirstName":
		name = lastName + "_" + firstName
	default:
		name = firstName + "_" + lastName
	}
	return sanitizeName(name)
}

// sanitizeName strips characters that are path separators locally or break
// Drive query string literals, and collapses whitespace to underscores.
func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == '\'' || r == '"' || r == 0:
			b.WriteRune('-')
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
