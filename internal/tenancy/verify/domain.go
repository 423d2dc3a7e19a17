// Package verify decides whether a signup email plausibly belongs to a
// company, by comparing the email domain against the company's legal name.
// It is pure string work: deterministic, no I/O, exhaustively unit-testable.
// Verification defends against squatter attacks, where an unaffiliated user
// claims membership in a company to get at its data.
package verify

import (
	"fmt"
	"strings"
)

// Result is the verifier's verdict. Reason is a human-readable string for
// audit and support, never for control flow.
type Result struct {
	Verified bool
	Reason   string
}

// matchThreshold is the minimum share of the company name an abbreviated
// domain must cover on a reverse match.
const matchThreshold = 0.70

// minReverseLen keeps trivially short domains from reverse-matching.
const minReverseLen = 4

// genericProviders are consumer email services that can never vouch for a
// company affiliation. Matched by suffix.
var genericProviders = []string{
	"gmail.com",
	"yahoo.com",
	"outlook.com",
	"hotmail.com",
	"icloud.com",
	"aol.com",
	"live.com",
	"msn.com",
	"protonmail.com",
	"proton.me",
	"bigpond.com",
	"optusnet.com.au",
}

// legalSuffixes are entity suffixes stripped off the end of a legal name,
// longest and most specific first so "proprietary limited" goes before
// "limited".
var legalSuffixes = []string{
	"proprietary limited",
	"pty. ltd.",
	"pty ltd",
	"incorporated",
	"corporation",
	"limited",
	"corp.",
	"corp",
	"inc.",
	"inc",
	"ltd.",
	"ltd",
	"llc",
	"plc",
}

// knownTLDs are stripped off the end of a domain, compound forms first.
var knownTLDs = []string{
	".com.au",
	".net.au",
	".org.au",
	".edu.au",
	".gov.au",
	".com",
	".net",
	".org",
}

// mailPrefixes are mail-infrastructure subdomains stripped off the front of
// a domain.
var mailPrefixes = []string{
	"mail.",
	"email.",
	"smtp.",
}

// Verify reports whether the email's domain plausibly belongs to the
// company with the given legal name.
func Verify(email, companyLegalName string) Result {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return Result{Verified: false, Reason: "email address has no domain"}
	}
	domain := strings.ToLower(email[at+1:])

	for _, provider := range genericProviders {
		if strings.HasSuffix(domain, provider) {
			return Result{
				Verified: false,
				Reason:   fmt.Sprintf("%s is a generic email provider", domain),
			}
		}
	}

	name := normalizeCompanyName(companyLegalName)
	normDomain := normalizeDomain(domain)
	if name == "" || normDomain == "" {
		return Result{Verified: false, Reason: "nothing left to compare after normalization"}
	}

	// Forward match: the company name appears inside the domain. Covers
	// exact matches and decorated domains like "atlassianmail".
	if strings.Contains(normDomain, name) {
		return Result{
			Verified: true,
			Reason:   fmt.Sprintf("domain %s matches company name", domain),
		}
	}

	// Reverse match: the domain is an abbreviation of the company name.
	// A short fragment inside a long name proves little, so require at
	// least 70% coverage.
	if len(normDomain) >= minReverseLen && strings.Contains(name, normDomain) {
		pct := float64(len(normDomain)) / float64(len(name))
		if pct >= matchThreshold {
			return Result{
				Verified: true,
				Reason:   fmt.Sprintf("domain %s is an abbreviation of company name", domain),
			}
		}
		return Result{
			Verified: false,
			Reason:   fmt.Sprintf("partial match only (%.0f%% of company name)", pct*100),
		}
	}

	return Result{
		Verified: false,
		Reason:   fmt.Sprintf("domain %s doesn't match company name", domain),
	}
}

// normalizeCompanyName lowercases the legal name, strips entity suffixes
// off the end in order, and drops everything non-alphanumeric.
func normalizeCompanyName(legalName string) string {
	name := strings.TrimSpace(strings.ToLower(legalName))
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSpace(name[:len(name)-len(suffix)])
		}
	}
	return stripNonAlnum(name)
}

// normalizeDomain strips one known TLD off the end, one mail-subdomain
// prefix off the front, and drops everything non-alphanumeric.
func normalizeDomain(domain string) string {
	for _, tld := range knownTLDs {
		if strings.HasSuffix(domain, tld) {
			domain = domain[:len(domain)-len(tld)]
			break
		}
	}
	for _, prefix := range mailPrefixes {
		if strings.HasPrefix(domain, prefix) {
			domain = domain[len(prefix):]
			break
		}
	}
	return stripNonAlnum(domain)
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
