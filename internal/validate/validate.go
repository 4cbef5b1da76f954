// Package validate holds the input rules shared by the API and the editor.
package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FieldError reports a single rejected field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func fieldError(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}

const (
	KindLink    = "link"
	KindHeader  = "header"
	KindDivider = "divider"
)

const (
	ThemeMinimal      = "minimal"
	ThemeDark         = "dark"
	ThemeColorful     = "colorful"
	ThemeProfessional = "professional"
)

const (
	MaxDisplayName = 50
	MaxBio         = 160
	MaxTitle       = 100
	MinSlug        = 3
	MaxSlug        = 30
)

// ReservedSlugs are the application's own route names.
var ReservedSlugs = map[string]struct{}{
	"login":     {},
	"signup":    {},
	"editor":    {},
	"analytics": {},
	"settings":  {},
	"api":       {},
	"admin":     {},
	"about":     {},
	"help":      {},
	"support":   {},
	"terms":     {},
	"privacy":   {},
	"auth":      {},
	"dashboard": {},
	"account":   {},
	"profile":   {},
	"public":    {},
	"static":    {},
	"assets":    {},
	"images":    {},
	"favicon":   {},
}

var allowedKinds = map[string]struct{}{
	KindLink:    {},
	KindHeader:  {},
	KindDivider: {},
}

var allowedThemes = map[string]struct{}{
	ThemeMinimal:      {},
	ThemeDark:         {},
	ThemeColorful:     {},
	ThemeProfessional: {},
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

func Slug(slug string) error {
	if len(slug) < MinSlug {
		return fieldError("slug", fmt.Sprintf("must be at least %d characters", MinSlug))
	}
	if len(slug) > MaxSlug {
		return fieldError("slug", fmt.Sprintf("must be at most %d characters", MaxSlug))
	}
	if !slugPattern.MatchString(slug) {
		return fieldError("slug", "must be lowercase alphanumeric with hyphens, cannot start or end with a hyphen")
	}
	if _, reserved := ReservedSlugs[slug]; reserved {
		return fieldError("slug", "is reserved")
	}
	return nil
}

func DisplayName(value string) error {
	if utf8.RuneCountInString(value) > MaxDisplayName {
		return fieldError("displayName", fmt.Sprintf("must be at most %d characters", MaxDisplayName))
	}
	return nil
}

func Bio(value string) error {
	if utf8.RuneCountInString(value) > MaxBio {
		return fieldError("bio", fmt.Sprintf("must be at most %d characters", MaxBio))
	}
	return nil
}

func AvatarURL(value string) error {
	if value == "" {
		return nil
	}
	if !IsAbsoluteURL(value) {
		return fieldError("avatarUrl", "must be a valid URL")
	}
	return nil
}

func Theme(value string) error {
	if _, ok := allowedThemes[value]; !ok {
		return fieldError("theme", "must be one of minimal, dark, colorful, professional")
	}
	return nil
}

// ProfileFields is the editable part of a profile.
type ProfileFields struct {
	DisplayName string
	Bio         string
	AvatarURL   string
	Theme       string
}

// Profile checks fields in display order and returns the first failure.
func Profile(fields ProfileFields) error {
	if err := DisplayName(fields.DisplayName); err != nil {
		return err
	}
	if err := Bio(fields.Bio); err != nil {
		return err
	}
	if err := AvatarURL(fields.AvatarURL); err != nil {
		return err
	}
	return Theme(fields.Theme)
}

func Kind(kind string) error {
	if _, ok := allowedKinds[kind]; !ok {
		return fieldError("kind", "must be one of link, header, divider")
	}
	return nil
}

// Item applies the per-kind requirements: links need a title and an absolute
// URL target, headers need a title, dividers need nothing.
func Item(kind, title, target string) error {
	if err := Kind(kind); err != nil {
		return err
	}
	if utf8.RuneCountInString(title) > MaxTitle {
		return fieldError("title", fmt.Sprintf("must be at most %d characters", MaxTitle))
	}
	switch kind {
	case KindLink:
		if strings.TrimSpace(title) == "" {
			return fieldError("title", "is required for links")
		}
		if strings.TrimSpace(target) == "" {
			return fieldError("target", "is required for links")
		}
		if !IsAbsoluteURL(target) {
			return fieldError("target", "must be a valid URL")
		}
	case KindHeader:
		if strings.TrimSpace(title) == "" {
			return fieldError("title", "is required for headers")
		}
	}
	return nil
}

// Placement is one entry of a reposition request.
type Placement struct {
	ID       string
	Position int
}

func Placements(items []Placement) error {
	for i, item := range items {
		if _, err := uuid.Parse(item.ID); err != nil {
			return fieldError(fmt.Sprintf("items[%d].id", i), "must be a UUID")
		}
		if item.Position < 0 {
			return fieldError(fmt.Sprintf("items[%d].position", i), "must be a non-negative integer")
		}
	}
	return nil
}

// IsAbsoluteURL reports whether value parses as a URL with a scheme and host.
func IsAbsoluteURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}
