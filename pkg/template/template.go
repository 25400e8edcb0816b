// Package template personalizes email content with contact tokens.
package template

import (
	"strings"

	"github.com/dukex/mailflow/pkg/models"
)

// Supported tokens.
const (
	TokenFirstName       = "{{firstName}}"
	TokenLastName        = "{{lastName}}"
	TokenName            = "{{name}}"
	TokenEmail           = "{{email}}"
	TokenUnsubscribeLink = "{{unsubscribeLink}}"
)

// Vars are the values substituted into content.
type Vars struct {
	FirstName       string
	LastName        string
	Name            string
	Email           string
	UnsubscribeLink string
}

// VarsFor builds the substitution values for a recipient. The contact may be
// nil, in which case names fall back to the execution data captured at
// enrollment and then to the address.
func VarsFor(contact *models.Contact, email string, executionData map[string]any, unsubscribeLink string) Vars {
	vars := Vars{Email: email, UnsubscribeLink: unsubscribeLink}

	if contact != nil {
		vars.FirstName = contact.FirstName
		vars.LastName = contact.LastName
		vars.Name = contact.Name()

		return vars
	}

	if name, ok := executionData["name"].(string); ok && strings.TrimSpace(name) != "" {
		name = strings.TrimSpace(name)
		vars.Name = name
		vars.FirstName, vars.LastName, _ = strings.Cut(name, " ")
		vars.LastName = strings.TrimSpace(vars.LastName)

		return vars
	}

	vars.Name = email

	return vars
}

// Render replaces every supported token in input. Unknown tokens are left as is.
func Render(input string, vars Vars) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return strings.NewReplacer(
		TokenFirstName, vars.FirstName,
		TokenLastName, vars.LastName,
		TokenName, vars.Name,
		TokenEmail, vars.Email,
		TokenUnsubscribeLink, vars.UnsubscribeLink,
	).Replace(input)
}
