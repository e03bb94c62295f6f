// Package validation builds the shared validator with the center's grade and
// subject rules registered as tags.
package validation

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// School lists the grades and subjects the validator accepts.
type School struct {
	Grades   []int
	Subjects []string
}

// DefaultSchool mirrors the center's standard offering.
var DefaultSchool = School{
	Grades:   []int{6, 7, 8},
	Subjects: []string{"English", "Tamil", "Mathematics", "History", "Science", "Geography"},
}

// HasGrade reports whether g is taught.
func (s School) HasGrade(g int) bool {
	for _, v := range s.Grades {
		if v == g {
			return true
		}
	}
	return false
}

// HasSubject reports whether name is taught, ignoring case.
func (s School) HasSubject(name string) bool {
	return s.Canonical(name) != ""
}

// Canonical returns the configured spelling of name, or "" when unknown.
func (s School) Canonical(name string) string {
	name = strings.TrimSpace(name)
	for _, v := range s.Subjects {
		if strings.EqualFold(v, name) {
			return v
		}
	}
	return ""
}

// ParseGradeFilter reads "all" or a grade number. ok is false for anything else.
func (s School) ParseGradeFilter(raw string) (grade int, all bool, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return 0, true, true
	}
	g, err := strconv.Atoi(raw)
	if err != nil || !s.HasGrade(g) {
		return 0, false, false
	}
	return g, false, true
}

// New returns a validator with "grade" and "subject" tags bound to school.
func New(school School) *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("grade", func(fl validator.FieldLevel) bool {
		return school.HasGrade(int(fl.Field().Int()))
	})
	_ = v.RegisterValidation("subject", func(fl validator.FieldLevel) bool {
		return school.HasSubject(fl.Field().String())
	})
	return v
}
