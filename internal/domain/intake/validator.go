package intake

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Field names as they appear in forms and JSON error responses.
const (
	FieldName             = "name"
	FieldEmail            = "email"
	FieldPhone            = "phone"
	FieldUniversity       = "university"
	FieldFaculty          = "faculty"
	FieldLevel            = "level"
	FieldFirstPreference  = "first_preference"
	FieldSecondPreference = "second_preference"
	FieldThirdPreference  = "third_preference"
	FieldTechSkills       = "tech_skills"
)

// MaxTechSkillsLength bounds the free-text skills field, in characters.
const MaxTechSkillsLength = 500

var (
	personNamePattern = regexp.MustCompile(`^[\p{Latin}\p{Arabic}\s.\-0-9]+$`)
	placeNamePattern  = regexp.MustCompile(`^[\p{Latin}\p{Arabic}\s\-0-9()]+$`)
	levelNamePattern  = regexp.MustCompile(`^[\p{Latin}\p{Arabic}\s0-9]+$`)
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	nonDigitPattern   = regexp.MustCompile(`\D`)
)

// Form is the raw registration submission.
type Form struct {
	Name             string
	Email            string
	Phone            string
	University       string
	Faculty          string
	Level            string
	FirstPreference  string
	SecondPreference string
	ThirdPreference  string
	TechSkills       string
}

// Preferences returns the three choices in rank order.
func (f Form) Preferences() [3]string {
	return [3]string{f.FirstPreference, f.SecondPreference, f.ThirdPreference}
}

// FieldError is the single rejection returned by Validate.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Policy carries the deployment-specific parts of the rules.
type Policy struct {
	PhoneMinDigits      int
	PhoneMaxDigits      int
	RequireDemographics bool
}

// DefaultPolicy matches the server-side rules the form shipped with.
func DefaultPolicy() Policy {
	return Policy{PhoneMinDigits: 10, PhoneMaxDigits: 11, RequireDemographics: true}
}

// WorkshopSet answers whether a code is in the active registry.
type WorkshopSet interface {
	Has(code string) bool
}

// rule is one step of the fixed validation order.
type rule struct {
	field   string
	tag     string
	message string
	value   func(Form) string
}

// Validator checks registration forms against a policy and a registry.
type Validator struct {
	validate *validator.Validate
	policy   Policy
	rules    []rule
}

// NewValidator builds a validator bound to a policy and workshop set.
// PRE: ws is non-nil; policy digits satisfy 0 < min <= max
// POST: Returns a validator safe for concurrent use
func NewValidator(policy Policy, ws WorkshopSet) *Validator {
	v := validator.New()
	mustRegister(v, "personname", matches(personNamePattern))
	mustRegister(v, "placename", matches(placeNamePattern))
	mustRegister(v, "levelname", matches(levelNamePattern))
	mustRegister(v, "nohtml", func(fl validator.FieldLevel) bool {
		return !tagPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "workshop", func(fl validator.FieldLevel) bool {
		return ws.Has(fl.Field().String())
	})

	demographic := "omitempty"
	if policy.RequireDemographics {
		demographic = "required"
	}

	return &Validator{
		validate: v,
		policy:   policy,
		rules: []rule{
			{FieldName, "required,min=2,max=100,personname", "Please enter a valid name (2-100 letters)",
				func(f Form) string { return f.Name }},
			{FieldEmail, "required,max=100,email", "Please enter a valid email address",
				func(f Form) string { return f.Email }},
			{FieldPhone, fmt.Sprintf("required,numeric,min=%d,max=%d", policy.PhoneMinDigits, policy.PhoneMaxDigits),
				phoneMessage(policy), func(f Form) string { return f.Phone }},
			{FieldUniversity, demographic + ",min=2,max=100,placename", "Please enter a valid university name",
				func(f Form) string { return f.University }},
			{FieldFaculty, demographic + ",min=2,max=100,placename", "Please enter a valid faculty name",
				func(f Form) string { return f.Faculty }},
			{FieldLevel, demographic + ",min=1,max=50,levelname", "Please enter a valid academic level",
				func(f Form) string { return f.Level }},
			{FieldFirstPreference, "required,workshop", "Please choose a valid first preference",
				func(f Form) string { return f.FirstPreference }},
			{FieldSecondPreference, "required,workshop", "Please choose a valid second preference",
				func(f Form) string { return f.SecondPreference }},
			{FieldThirdPreference, "required,workshop", "Please choose a valid third preference",
				func(f Form) string { return f.ThirdPreference }},
		},
	}
}

// Validate normalizes the form and checks every field in a fixed order.
// PRE: none
// POST: Returns the normalized form, or a *FieldError naming the first failing field
// INVARIANT: No side effects; the input is not mutated
func (v *Validator) Validate(f Form) (Form, error) {
	f = Normalize(f)

	for _, r := range v.rules {
		if err := v.validate.Var(r.value(f), r.tag); err != nil {
			return Form{}, &FieldError{Field: r.field, Message: r.message}
		}
	}

	if field := duplicatePreference(f); field != "" {
		return Form{}, &FieldError{Field: field, Message: "Please choose three different workshops"}
	}

	if err := v.validate.Var(f.TechSkills, fmt.Sprintf("max=%d,nohtml", MaxTechSkillsLength)); err != nil {
		return Form{}, &FieldError{Field: FieldTechSkills, Message: "Skills must be plain text up to 500 characters"}
	}

	return f, nil
}

// Policy returns the policy the validator was built with.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Normalize trims every field, lower-cases the email, keeps only the
// digits of the phone and strips control characters from tech_skills.
func Normalize(f Form) Form {
	return Form{
		Name:             strings.TrimSpace(f.Name),
		Email:            strings.ToLower(strings.TrimSpace(f.Email)),
		Phone:            nonDigitPattern.ReplaceAllString(f.Phone, ""),
		University:       strings.TrimSpace(f.University),
		Faculty:          strings.TrimSpace(f.Faculty),
		Level:            strings.TrimSpace(f.Level),
		FirstPreference:  strings.TrimSpace(f.FirstPreference),
		SecondPreference: strings.TrimSpace(f.SecondPreference),
		ThirdPreference:  strings.TrimSpace(f.ThirdPreference),
		TechSkills:       sanitizeText(f.TechSkills),
	}
}

// duplicatePreference returns the first slot repeating an earlier one.
func duplicatePreference(f Form) string {
	if f.SecondPreference == f.FirstPreference {
		return FieldSecondPreference
	}
	if f.ThirdPreference == f.FirstPreference || f.ThirdPreference == f.SecondPreference {
		return FieldThirdPreference
	}
	return ""
}

// sanitizeText drops control characters other than line breaks and tabs.
func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func phoneMessage(p Policy) string {
	if p.PhoneMinDigits == p.PhoneMaxDigits {
		return fmt.Sprintf("Phone number must be %d digits", p.PhoneMinDigits)
	}
	return fmt.Sprintf("Phone number must be %d-%d digits", p.PhoneMinDigits, p.PhoneMaxDigits)
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("intake: register %s: %v", tag, err))
	}
}
