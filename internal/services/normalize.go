package services

import "strings"

// Normalization helpers used at every comparison site. Kept in one place so
// the legacy-status matching, owner-name matching and dedup key all agree on
// what "equal" means.

var poReceivedSynonyms = map[string]struct{}{
	"po received": {},
	"po recieve":  {},
	"po recieved": {},
	"po recived":  {},
}

// NormalizePOStatus lower-cases, maps dashes and underscores to spaces and
// collapses whitespace.
func NormalizePOStatus(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", " ")
	normalized = strings.ReplaceAll(normalized, "_", " ")
	return strings.Join(strings.Fields(normalized), " ")
}

// IsPOReceivedRaw reports whether a raw legacy status means "purchase order
// received", tolerating the misspellings found in source data.
func IsPOReceivedRaw(value *string) bool {
	if value == nil {
		return false
	}
	_, ok := poReceivedSynonyms[NormalizePOStatus(*value)]
	return ok
}

// IsDefaultStatus reports whether a raw legacy status carries no owner-name
// hint: empty values and PO-received synonyms are the "pending" sentinels.
func IsDefaultStatus(value *string) bool {
	if value == nil || strings.TrimSpace(*value) == "" {
		return true
	}
	return IsPOReceivedRaw(value)
}

// NormalizeName collapses all whitespace (including newlines) in a free-text
// name to single spaces and trims it.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(name, "\n", " ")), " ")
}

// maxSlugLen bounds generated email local parts.
const maxSlugLen = 40

// SlugifyName turns a person's name into an email local part: lower-case
// alphanumeric runs joined by single dots, truncated, with a fixed fallback
// when nothing usable remains.
func SlugifyName(name string) string {
	var b strings.Builder
	for _, ch := range strings.ToLower(name) {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteByte('.')
		}
	}

	parts := make([]string, 0, 4)
	for _, part := range strings.Split(b.String(), ".") {
		if part != "" {
			parts = append(parts, part)
		}
	}

	slug := strings.Join(parts, ".")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	if slug == "" {
		return "assignee"
	}
	return slug
}
