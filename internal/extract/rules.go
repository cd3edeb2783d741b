package extract

import (
	"regexp"

	"ctiflow/pkg/models"
)

// rule is one extraction pattern: indicator class, pattern name for per-rule
// tests, compiled expression and a base confidence. Patterns are intentionally
// conservative to keep false positives down; semantic validation happens in
// the per-type validators after a raw match.
type rule struct {
	Type           models.IndicatorType
	Name           string
	Pattern        *regexp.Regexp
	BaseConfidence float64
}

var (
	urlPattern   = regexp.MustCompile(`\bhttps?://[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	sha256Pattern = regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`)
	sha1Pattern   = regexp.MustCompile(`\b[a-fA-F0-9]{40}\b`)
	md5Pattern    = regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`)

	ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)
	ipv6Pattern = regexp.MustCompile(`\b(?:[0-9a-fA-F]{0,4}:){2,7}[0-9a-fA-F]{0,4}\b`)

	domainPattern = regexp.MustCompile(`\b(?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,}\b`)
)

// defaultRules lists patterns in priority order. Earlier rules claim their
// matched spans first, so a hostname inside a URL or an address inside an
// email never double-extracts as a bare domain.
var defaultRules = []rule{
	{Type: models.IndicatorURL, Name: "url", Pattern: urlPattern, BaseConfidence: 0.9},
	{Type: models.IndicatorEmail, Name: "email", Pattern: emailPattern, BaseConfidence: 0.85},
	{Type: models.IndicatorHash, Name: "sha256", Pattern: sha256Pattern, BaseConfidence: 0.95},
	{Type: models.IndicatorHash, Name: "sha1", Pattern: sha1Pattern, BaseConfidence: 0.95},
	{Type: models.IndicatorHash, Name: "md5", Pattern: md5Pattern, BaseConfidence: 0.9},
	{Type: models.IndicatorIP, Name: "ipv4", Pattern: ipv4Pattern, BaseConfidence: 0.8},
	{Type: models.IndicatorIP, Name: "ipv6", Pattern: ipv6Pattern, BaseConfidence: 0.8},
	{Type: models.IndicatorDomain, Name: "domain", Pattern: domainPattern, BaseConfidence: 0.6},
}

// hashAlgoForRule maps the hash pattern names to their algorithm label.
var hashAlgoForRule = map[string]string{
	"md5":    "md5",
	"sha1":   "sha1",
	"sha256": "sha256",
}
