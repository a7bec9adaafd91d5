package logger

import "strings"

// RedactEmail masks the local part of an email address so contact details
// supplied on the submit forms never reach the logs in full.
// "john.doe@example.com" → "jo***@example.com"; local parts of two
// characters or fewer are masked completely.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
