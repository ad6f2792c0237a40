package redact

import (
	"regexp"
	"strings"
)

// nameStopwords are capitalized words that commonly precede or follow a
// real name but are not names themselves. A candidate containing one is
// rejected and scanning resumes inside the rejected span.
var nameStopwords = map[string]bool{
	"Contact": true, "Dear": true, "Please": true, "Regards": true,
	"Thanks": true, "Thank": true, "Sincerely": true, "Hello": true,
	"Kind": true, "Best": true, "Yours": true, "Subject": true,
	"The": true, "This": true, "That": true, "From": true, "Attn": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
	"January": true, "February": true, "March": true, "April": true,
	"May": true, "June": true, "July": true, "August": true,
	"September": true, "October": true, "November": true, "December": true,
}

func nameFilter(match string) bool {
	for _, token := range strings.Fields(match) {
		if nameStopwords[token] {
			return false
		}
	}
	return true
}

// maskDigits masks every digit in s except the trailing keep digits.
func maskDigits(s string, keep int) string {
	out := []byte(s)
	digitsSeen := 0
	total := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			total++
		}
	}
	for i, c := range out {
		if c >= '0' && c <= '9' {
			digitsSeen++
			if digitsSeen <= total-keep {
				out[i] = '*'
			}
		}
	}
	return string(out)
}

func partialEmail(match string) string {
	at := strings.LastIndex(match, "@")
	if at <= 0 {
		return "[EMAIL_REDACTED]"
	}
	local, domain := match[:at], match[at:]
	visible := 2
	if len(local) < visible {
		visible = 1
	}
	return local[:visible] + strings.Repeat("*", len(local)-visible) + domain
}

func partialInitials(match string) string {
	parts := strings.Fields(match)
	initials := make([]string, 0, len(parts))
	for _, p := range parts {
		initials = append(initials, p[:1]+".")
	}
	return strings.Join(initials, " ")
}

func partialPostcode(match string) string {
	parts := strings.Fields(match)
	if len(parts) == 2 {
		return parts[0] + " ***"
	}
	half := len(match) / 2
	return match[:half] + strings.Repeat("*", len(match)-half)
}

func partialNI(match string) string {
	return match[:2] + strings.Repeat("*", len(match)-3) + match[len(match)-1:]
}

func partialDOB(match string) string {
	if len(match) >= 4 {
		return "**/**/" + match[len(match)-4:]
	}
	return "**/**/****"
}

func partialCaseRef(match string) string {
	dash := strings.Index(match, "-")
	if dash < 0 {
		return "[CASE_REF_REDACTED]"
	}
	return match[:dash] + "-****"
}

func partialJWT(match string) string {
	dot := strings.Index(match, ".")
	if dot < 0 || dot > 10 {
		dot = 10
	}
	return match[:dot] + ".***"
}

func partialAddress(match string) string {
	i := 0
	for i < len(match) && match[i] >= '0' && match[i] <= '9' {
		i++
	}
	return strings.Repeat("*", i) + match[i:]
}

// DefaultRules returns the built-in rule set for UK legal-practice data.
// The generic 8-digit account and 9-digit passport patterns collide with
// case reference numbers and ship disabled; enable them per deployment.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			ID:       "jwt-token",
			Name:     "JWT bearer token",
			Pattern:  regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`),
			Category: CategoryIdentifier,
			Severity: SeverityCritical,
			Tag:      "JWT",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[JWT_REDACTED]"),
				LevelPartial: Func(partialJWT),
			},
		},
		{
			ID:       "email",
			Name:     "Email address",
			Pattern:  regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			Category: CategoryContact,
			Severity: SeverityHigh,
			Tag:      "EMAIL",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[EMAIL_REDACTED]"),
				LevelPartial: Func(partialEmail),
			},
		},
		{
			ID:       "uk-ni-number",
			Name:     "National Insurance number",
			Pattern:  regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2} ?\d{2} ?\d{2} ?\d{2} ?[A-D]\b`),
			Category: CategoryIdentifier,
			Severity: SeverityCritical,
			Tag:      "NI",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[NI_REDACTED]"),
				LevelPartial: Func(partialNI),
			},
		},
		{
			ID:       "sort-code",
			Name:     "Bank sort code",
			Pattern:  regexp.MustCompile(`\b\d{2}-\d{2}-\d{2}\b`),
			Category: CategoryFinancial,
			Severity: SeverityCritical,
			Tag:      "SORT_CODE",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[SORT_CODE_REDACTED]"),
				LevelPartial: Func(func(m string) string { return maskDigits(m, 2) }),
			},
		},
		{
			ID:       "credit-card",
			Name:     "Payment card number",
			Pattern:  regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{2,4}\b`),
			Category: CategoryFinancial,
			Severity: SeverityCritical,
			Tag:      "CARD",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[CARD_REDACTED]"),
				LevelPartial: Func(func(m string) string { return maskDigits(m, 4) }),
			},
		},
		{
			ID:       "uk-phone",
			Name:     "UK phone number",
			Pattern:  regexp.MustCompile(`\b(?:\+?44\s?7\d{3}|07\d{3})\s?\d{3}\s?\d{3}\b|\b0[12]\d{2,3}\s?\d{3}\s?\d{3,4}\b`),
			Category: CategoryContact,
			Severity: SeverityHigh,
			Tag:      "PHONE",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[PHONE_REDACTED]"),
				LevelPartial: Func(func(m string) string { return maskDigits(m, 3) }),
			},
		},
		{
			ID:       "date-of-birth",
			Name:     "Date of birth",
			Pattern:  regexp.MustCompile(`\b(?:0?[1-9]|[12]\d|3[01])[/-](?:0?[1-9]|1[0-2])[/-](?:19|20)\d{2}\b`),
			Category: CategoryPII,
			Severity: SeverityHigh,
			Tag:      "DOB",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[DOB_REDACTED]"),
				LevelPartial: Func(partialDOB),
			},
		},
		{
			ID:       "uk-postcode",
			Name:     "UK postcode",
			Pattern:  regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}\b`),
			Category: CategoryContact,
			Severity: SeverityMedium,
			Tag:      "POSTCODE",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[POSTCODE_REDACTED]"),
				LevelPartial: Func(partialPostcode),
			},
		},
		{
			ID:       "uk-address",
			Name:     "UK street address",
			Pattern:  regexp.MustCompile(`\b\d{1,4} [A-Z][a-z]+(?: [A-Z][a-z]+)* (?:Street|Road|Lane|Avenue|Close|Drive|Way|Court|Place|Gardens|Terrace|Crescent)\b`),
			Category: CategoryContact,
			Severity: SeverityHigh,
			Tag:      "ADDRESS",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[ADDRESS_REDACTED]"),
				LevelPartial: Func(partialAddress),
			},
		},
		{
			ID:       "case-reference",
			Name:     "Case reference number",
			Pattern:  regexp.MustCompile(`\b(?:CASE|MAT|CLM|PRB)-\d{4}-\d{3,6}\b`),
			Category: CategoryLegal,
			Severity: SeverityMedium,
			Tag:      "CASE_REF",
			Enabled:  true,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[CASE_REF_REDACTED]"),
				LevelPartial: Func(partialCaseRef),
			},
		},
		{
			ID:       "uk-names",
			Name:     "Personal name",
			Pattern:  regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`),
			Category: CategoryPII,
			Severity: SeverityHigh,
			Tag:      "NAME",
			Enabled:  true,
			Filter:   nameFilter,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[NAME_REDACTED]"),
				LevelPartial: Func(partialInitials),
			},
		},
		{
			ID:       "bank-account",
			Name:     "Bank account number",
			Pattern:  regexp.MustCompile(`\b\d{8}\b`),
			Category: CategoryFinancial,
			Severity: SeverityCritical,
			Tag:      "ACCOUNT",
			Enabled:  false,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[ACCOUNT_REDACTED]"),
				LevelPartial: Func(func(m string) string { return maskDigits(m, 4) }),
			},
		},
		{
			ID:       "passport-number",
			Name:     "Passport number",
			Pattern:  regexp.MustCompile(`\b\d{9}\b`),
			Category: CategoryIdentifier,
			Severity: SeverityCritical,
			Tag:      "PASSPORT",
			Enabled:  false,
			Replacements: map[Level]Replacement{
				LevelFull:    Static("[PASSPORT_REDACTED]"),
				LevelPartial: Func(func(m string) string { return maskDigits(m, 4) }),
			},
		},
	}
}
