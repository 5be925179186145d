package orgs

import (
	"fmt"
	"strings"
)

const maxSlugLength = 63

// GenerateSlug derives a URL-safe slug from an organization name
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// ValidateSlug checks a caller-supplied slug
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidInput)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug longer than %d characters", ErrInvalidInput, maxSlugLength)
	}
	if GenerateSlug(slug) != slug {
		return fmt.Errorf("%w: slug %q must be lowercase letters, digits and single dashes", ErrInvalidInput, slug)
	}
	if isNumeric(slug) {
		return fmt.Errorf("%w: slug cannot be numeric", ErrInvalidInput)
	}
	return nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
