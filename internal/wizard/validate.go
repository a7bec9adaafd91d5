// Package wizard defines the multi-page form journeys and their
// validation rules.
package wizard

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrValidation is matched by every error Validate returns.
var ErrValidation = errors.New("validation failed")

// FieldError is one message shown next to a form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is the ordered list of field errors for one form submission.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e Errors) Is(target error) bool { return target == ErrValidation }

// For returns the message for field, empty if it is valid.
func (e Errors) For(field string) string {
	for _, fe := range e {
		if fe.Field == field {
			return fe.Message
		}
	}
	return ""
}

// Validator checks a trimmed value and returns a message when invalid.
type Validator func(value string) string

// Rule applies validators to one field; the first failing one wins.
type Rule struct {
	Field      string
	Validators []Validator
}

// Values is read access to submitted or stored form values.
type Values interface {
	Get(key string) string
}

// Validate runs rules against values in order.
func Validate(values Values, rules []Rule) error {
	var errs Errors
	for _, rule := range rules {
		v := strings.TrimSpace(values.Get(rule.Field))
		for _, check := range rule.Validators {
			if msg := check(v); msg != "" {
				errs = append(errs, FieldError{Field: rule.Field, Message: msg})
				break
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Required fails on an empty value.
func Required(msg string) Validator {
	return func(v string) string {
		if v == "" {
			return msg
		}
		return ""
	}
}

// MaxLength fails when the value has more than n characters.
func MaxLength(n int, msg string) Validator {
	return func(v string) string {
		if len([]rune(v)) > n {
			return msg
		}
		return ""
	}
}

// OneOf fails unless the value is one of allowed. Empty values pass so
// Required controls presence.
func OneOf(allowed []string, msg string) Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		for _, a := range allowed {
			if v == a {
				return ""
			}
		}
		return msg
	}
}

var emailDomain = regexp.MustCompile(`^[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email fails unless the value is a bare address like name@example.com.
func Email(msg string) Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		addr, err := mail.ParseAddress(v)
		if err != nil || addr.Address != v || addr.Name != "" {
			return msg
		}
		_, domain, _ := strings.Cut(v, "@")
		if !emailDomain.MatchString(domain) {
			return msg
		}
		return ""
	}
}

// MaxURLLength is the longest endpoint URL the backend accepts.
const MaxURLLength = 2048

// URL fails unless the value is an absolute http or https URL with a host.
func URL(msg, tooLong string) Validator {
	return func(v string) string {
		if v == "" {
			return ""
		}
		if len(v) > MaxURLLength {
			return tooLong
		}
		u, err := url.ParseRequestURI(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
			return msg
		}
		if !strings.Contains(u.Hostname(), ".") && u.Hostname() != "localhost" {
			return msg
		}
		return ""
	}
}

// AllowedUploadExtensions lists the file types the backend can convert.
var AllowedUploadExtensions = []string{".csv", ".xls", ".xlsx", ".json", ".geojson", ".gml", ".gpkg", ".sqlite3"}

// DefaultMaxUploadSize is the upload cap when none is configured.
const DefaultMaxUploadSize int64 = 100 * 1000 * 1000

// ValidateUpload checks an uploaded file's name and size.
func ValidateUpload(field, filename string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	var msg string
	switch {
	case filename == "" || size == 0:
		msg = "Select a file"
	case !allowedExtension(filename):
		msg = "The selected file must be a CSV, GeoJSON, GML, GeoPackage, JSON, SQLite, XLS or XLSX"
	case size > maxSize:
		msg = fmt.Sprintf("The selected file must be smaller than %s", humanize.Bytes(uint64(maxSize)))
	default:
		return nil
	}
	return Errors{{Field: field, Message: msg}}
}

func allowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range AllowedUploadExtensions {
		if ext == a {
			return true
		}
	}
	return false
}
