package service

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"

	"github.com/Raymond9734/whatsapp-campaign-dispatcher/internal/models"
)

// TemplateService handles message personalization and template validation
type TemplateService interface {
	Render(template string, vars map[string]string) string
	ValidateTemplate(template string) error
	ExtractPlaceholders(template string) []string
}

type templateService struct {
	choicePattern      *regexp.Regexp
	placeholderPattern *regexp.Regexp
	pick               func(n int) int
}

// NewTemplateService creates a new template service
func NewTemplateService() TemplateService {
	return newTemplateService(rand.IntN)
}

func newTemplateService(pick func(n int) int) *templateService {
	return &templateService{
		choicePattern:      regexp.MustCompile(`\{\{([^{}]*)\}\}`),
		placeholderPattern: regexp.MustCompile(`\{([^{}]+)\}`),
		pick:               pick,
	}
}

// Render personalizes a message in two passes.
// Every {{a|b|c}} token becomes one alternative picked at random, independently
// per occurrence. Then every {key} matching a variable (case-insensitive) is
// replaced by its value. Placeholders without a matching variable are left as is.
func (s *templateService) Render(template string, vars map[string]string) string {
	expanded := s.choicePattern.ReplaceAllStringFunc(template, func(match string) string {
		inner := match[2 : len(match)-2]

		var options []string
		for _, option := range strings.Split(inner, "|") {
			if option = strings.TrimSpace(option); option != "" {
				options = append(options, option)
			}
		}

		if len(options) == 0 {
			return ""
		}
		return options[s.pick(len(options))]
	})

	if len(vars) == 0 {
		return expanded
	}

	values := make(map[string]string, len(vars))
	for key, value := range vars {
		values[strings.ToLower(key)] = value
	}

	return s.placeholderPattern.ReplaceAllStringFunc(expanded, func(match string) string {
		if value, exists := values[strings.ToLower(match[1:len(match)-1])]; exists {
			return value
		}
		return match
	})
}

// ValidateTemplate checks that template is non-empty and only uses known recipient variables
func (s *templateService) ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return models.ErrInvalidInput("template cannot be empty")
	}

	valid := make(map[string]bool)
	names := make([]string, 0)
	for key := range (&models.Recipient{}).Variables() {
		valid[key] = true
		names = append(names, key)
	}
	sort.Strings(names)

	var invalid []string
	for _, placeholder := range s.ExtractPlaceholders(template) {
		if !valid[strings.ToLower(placeholder)] {
			invalid = append(invalid, placeholder)
		}
	}

	if len(invalid) > 0 {
		return models.ErrInvalidInput(
			fmt.Sprintf("invalid placeholders: %s. Valid placeholders are: %s",
				strings.Join(invalid, ", "), strings.Join(names, ", ")),
		)
	}

	return nil
}

// ExtractPlaceholders returns the single-brace variable names found in template.
// Random-choice tokens are not variables and are skipped.
func (s *templateService) ExtractPlaceholders(template string) []string {
	stripped := s.choicePattern.ReplaceAllString(template, "")
	matches := s.placeholderPattern.FindAllStringSubmatch(stripped, -1)
	placeholders := make([]string, 0, len(matches))

	for _, match := range matches {
		if len(match) > 1 {
			placeholders = append(placeholders, match[1])
		}
	}

	return placeholders
}
