package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names one of the two independent entry collections
type Kind string

const (
	KindExperience Kind = "experience"
	KindEducation  Kind = "education"
)

// Kinds lists every collection kind in display order
func Kinds() []Kind {
	return []Kind{KindExperience, KindEducation}
}

// ParseKind accepts the kind name or its short/plural forms
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "experience", "experiences", "exp":
		return KindExperience, nil
	case "education", "edu":
		return KindEducation, nil
	}
	return "", fmt.Errorf("unknown entry kind %q", s)
}

// Key is the persistent record name holding the collection
func (k Kind) Key() string {
	switch k {
	case KindExperience:
		return "cv-vault-exp"
	case KindEducation:
		return "cv-vault-edu"
	}
	return "cv-vault-" + string(k)
}

// Category classifies an experience entry
type Category string

const (
	CategoryMath    Category = "Math"
	CategoryPhysics Category = "Physics"
	CategoryEcon    Category = "Econ"
	CategoryCS      Category = "CS"
	CategoryAI      Category = "AI"
	CategoryOther   Category = "Other"
)

// Categories returns all categories in declaration order
func Categories() []Category {
	return []Category{CategoryMath, CategoryPhysics, CategoryEcon, CategoryCS, CategoryAI, CategoryOther}
}

// ParseCategory matches a category name case-insensitively
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories() {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

// Entry is the behaviour shared by both entry variants
type Entry interface {
	EntryID() string
	EntryKind() Kind
	ReflectionText() string
}

// Experience is a super-curricular activity
type Experience struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Category   Category `json:"category"`
	Date       string   `json:"date"`
	Challenge  string   `json:"challenge"`
	Learning   string   `json:"learning"`
	Link       string   `json:"link"`
	Reflection string   `json:"reflection,omitempty"`
}

func (e Experience) EntryID() string { return e.ID }
func (e Experience) EntryKind() Kind { return KindExperience }
func (e Experience) ReflectionText() string { return e.Reflection }

// Education is a qualification
type Education struct {
	ID            string `json:"id"`
	School        string `json:"school"`
	Qualification string `json:"qualification"`
	Dates         string `json:"dates"`
	Subjects      string `json:"subjects"`
	Notes         string `json:"notes"`
	Reflection    string `json:"reflection,omitempty"`
}

func (e Education) EntryID() string { return e.ID }
func (e Education) EntryKind() Kind { return KindEducation }
func (e Education) ReflectionText() string { return e.Reflection }

// ExperienceInput holds the user-supplied fields of a new experience
type ExperienceInput struct {
	Title     string   `json:"title"`
	Category  Category `json:"category"`
	Date      string   `json:"date"`
	Challenge string   `json:"challenge"`
	Learning  string   `json:"learning"`
	Link      string   `json:"link"`
}

// Validate checks required fields and the category value
func (in ExperienceInput) Validate() error {
	switch {
	case blank(in.Title):
		return &ValidationError{Kind: KindExperience, Field: "title"}
	case blank(in.Challenge):
		return &ValidationError{Kind: KindExperience, Field: "challenge"}
	case blank(in.Learning):
		return &ValidationError{Kind: KindExperience, Field: "learning"}
	}
	if in.Category != "" {
		if _, ok := ParseCategory(string(in.Category)); !ok {
			return &ValidationError{Kind: KindExperience, Field: "category", Reason: fmt.Sprintf("unknown category %q", in.Category)}
		}
	}
	return nil
}

// EducationInput holds the user-supplied fields of a new education entry
type EducationInput struct {
	School        string `json:"school"`
	Qualification string `json:"qualification"`
	Dates         string `json:"dates"`
	Subjects      string `json:"subjects"`
	Notes         string `json:"notes"`
}

// Validate checks required fields
func (in EducationInput) Validate() error {
	if blank(in.School) {
		return &ValidationError{Kind: KindEducation, Field: "school"}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ErrValidation matches every *ValidationError via errors.Is
var ErrValidation = errors.New("validation failed")

// ValidationError rejects a creation whose field is missing or invalid
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "is required"
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Field, reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
