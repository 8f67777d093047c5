package services

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/getactive/apiserver/internal/apierr"
)

const allowedEmailDomain = "@bu.edu"

var avatarDataPattern = regexp.MustCompile(`^data:image/(jpeg|png);base64,([A-Za-z0-9+/=]+)$`)

// RegisterInput is the data needed to open an account.
type RegisterInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r RegisterInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email, validation.By(universityEmail)),
		validation.Field(&r.Username, validation.Required, validation.RuneLength(2, 20)),
		validation.Field(&r.Password, validation.Required, validation.RuneLength(8, 32), validation.By(strongPassword)),
	)
}

// ActivityInput is the editable part of an activity.
type ActivityInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

func (a ActivityInput) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.Required, validation.RuneLength(1, 250)),
		validation.Field(&a.Description, validation.Required, validation.RuneLength(1, 250)),
		validation.Field(&a.Location, validation.Required, validation.RuneLength(1, 250)),
	)
}

func universityEmail(value interface{}) error {
	email, _ := value.(string)
	at := strings.Index(email, "@")
	if at <= 0 || strings.Count(email, "@") != 1 {
		return errors.New("must contain exactly one '@' after a non-empty local part")
	}
	if !strings.HasSuffix(email, allowedEmailDomain) {
		return errors.New("must be a " + allowedEmailDomain + " address")
	}
	return nil
}

func strongPassword(value interface{}) error {
	password, _ := value.(string)
	var upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !digit || !special {
		return errors.New("must contain an uppercase letter, a digit and a special character")
	}
	return nil
}

// invalidInput converts ozzo validation errors into an apierr.Error.
func invalidInput(message string, err error) error {
	fields, ok := validationFields(err)
	if !ok {
		return apierr.Internal("", "validation failed", err)
	}
	return apierr.InvalidInput(message, fields)
}

func validationFields(err error) (map[string][]string, bool) {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	fields := make(map[string][]string, len(verrs))
	for field, fieldErr := range verrs {
		if fieldErr != nil {
			fields[field] = []string{fieldErr.Error()}
		}
	}
	return fields, true
}
