// SPDX-License-Identifier: Apache-2.0

package sequence

import (
	"regexp"
	"strconv"

	"github.com/proposalai/followups/internal/domain"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes {{name}} placeholders. Unknown names render as "".
func Render(tmpl string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		return vars[name]
	})
}

// Variables builds the template variables for a proposal.
func Variables(p domain.ProposalSnapshot) map[string]string {
	vars := map[string]string{
		"client_name":    p.ClientName,
		"client_email":   p.ClientEmail,
		"client_company": p.ClientCompany,
		"company_name":   p.CompanyName,
		"proposal_title": p.Title,
		"proposal_value": strconv.FormatFloat(p.Value, 'f', 2, 64),
	}
	return vars
}
