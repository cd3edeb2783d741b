package extract

import (
	"net/netip"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"ctiflow/pkg/models"
)

// Config controls extraction filtering.
type Config struct {
	// MinConfidence suppresses indicators below the floor entirely. At the
	// default of 0, allowlisted values are still emitted with confidence 0
	// for audit.
	MinConfidence float64

	// AllowPrivateIPs keeps RFC-reserved and private addresses that would
	// otherwise be dropped as extraction noise.
	AllowPrivateIPs bool

	// Denylist values (exact or parent-domain match) are rejected outright.
	// Empty means the built-in list.
	Denylist []string

	// Allowlist marks known benign infrastructure; matches are emitted with
	// confidence 0. Empty means the built-in list.
	Allowlist []string
}

// Documentation and test domains plus values that show up in nearly every
// report template without being indicators.
var defaultDenylist = []string{
	"example.com",
	"example.org",
	"example.net",
	"localhost",
	"localhost.localdomain",
	"w3.org",
	"schema.org",
}

// Common CDN and SaaS infrastructure frequently named in reports as context,
// not as attacker assets.
var defaultAllowlist = []string{
	"cloudflare.com",
	"akamai.net",
	"akamaiedge.net",
	"fastly.net",
	"cloudfront.net",
	"googleapis.com",
	"gstatic.com",
	"amazonaws.com",
	"azureedge.net",
	"windowsupdate.com",
	"office365.com",
	"github.com",
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("100::/64"),
}

// Extractor scans normalized event text for indicators. Extract is a pure
// function of the event, safe to call concurrently.
type Extractor struct {
	cfg   Config
	rules []rule
	deny  []string
	allow []string
}

// New creates an extractor with the default rule table.
func New(cfg Config) *Extractor {
	deny := cfg.Denylist
	if deny == nil {
		deny = defaultDenylist
	}
	allow := cfg.Allowlist
	if allow == nil {
		allow = defaultAllowlist
	}
	return &Extractor{
		cfg:   cfg,
		rules: defaultRules,
		deny:  lowerAll(deny),
		allow: lowerAll(allow),
	}
}

type span struct{ start, end int }

// Extract returns the deduplicated indicator set for one event. Within an
// event, raw matches normalizing to the same value collapse to a single
// record keeping the highest pattern confidence.
func (x *Extractor) Extract(event *models.Event) models.IndicatorSet {
	text := Refang(event.NormalizedText)
	firstSeen, _ := event.ObservedAt()

	candidates := make(map[string]models.Indicator, 16)
	var occupied []span

	for _, r := range x.rules {
		for _, m := range r.Pattern.FindAllStringIndex(text, -1) {
			if overlaps(occupied, m[0], m[1]) {
				continue
			}
			raw := text[m[0]:m[1]]

			switch r.Type {
			case models.IndicatorURL:
				cleaned := strings.TrimRight(raw, ".,;:'\")]}")
				u, err := url.Parse(cleaned)
				if err != nil || u.Hostname() == "" {
					continue
				}
				occupied = append(occupied, span{m[0], m[0] + len(cleaned)})
				x.add(candidates, models.Indicator{
					IOCType:         models.IndicatorURL,
					RawValue:        cleaned,
					NormalizedValue: cleaned,
					Confidence:      r.BaseConfidence,
				})
				x.addHost(candidates, u.Hostname())

			case models.IndicatorEmail:
				norm := strings.ToLower(raw)
				if at := strings.LastIndexByte(norm, '@'); at >= 0 && x.denied(norm[at+1:]) {
					continue
				}
				occupied = append(occupied, span{m[0], m[1]})
				x.add(candidates, models.Indicator{
					IOCType:         models.IndicatorEmail,
					RawValue:        raw,
					NormalizedValue: norm,
					Confidence:      r.BaseConfidence,
				})

			case models.IndicatorHash:
				occupied = append(occupied, span{m[0], m[1]})
				x.add(candidates, models.Indicator{
					IOCType:         models.IndicatorHash,
					RawValue:        raw,
					NormalizedValue: strings.ToLower(raw),
					HashAlgo:        hashAlgoForRule[r.Name],
					Confidence:      r.BaseConfidence,
				})

			case models.IndicatorIP:
				if r.Name == "ipv4" && versionShaped(text, m[0]) {
					continue
				}
				ind, ok := x.ipIndicator(raw, r.BaseConfidence)
				if !ok {
					continue
				}
				occupied = append(occupied, span{m[0], m[1]})
				x.add(candidates, ind)

			case models.IndicatorDomain:
				ind, ok := x.domainIndicator(raw, r.BaseConfidence)
				if !ok {
					continue
				}
				occupied = append(occupied, span{m[0], m[1]})
				x.add(candidates, ind)
			}
		}
	}

	out := make([]models.Indicator, 0, len(candidates))
	for _, ind := range candidates {
		if ind.Confidence < x.cfg.MinConfidence {
			continue
		}
		ind.SourceEventID = event.EventID
		ind.FirstSeen = firstSeen
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IOCType != out[j].IOCType {
			return out[i].IOCType < out[j].IOCType
		}
		return out[i].NormalizedValue < out[j].NormalizedValue
	})

	return models.IndicatorSet{EventID: event.EventID, Indicators: out}
}

// addHost decomposes a URL host into an additional ip or domain indicator.
func (x *Extractor) addHost(candidates map[string]models.Indicator, host string) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return
	}
	if _, err := netip.ParseAddr(host); err == nil {
		if ind, ok := x.ipIndicator(host, baseConfidence(models.IndicatorIP)); ok {
			x.add(candidates, ind)
		}
		return
	}
	if ind, ok := x.domainIndicator(host, baseConfidence(models.IndicatorDomain)); ok {
		x.add(candidates, ind)
	}
}

func (x *Extractor) ipIndicator(raw string, conf float64) (models.Indicator, bool) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return models.Indicator{}, false
	}
	if !x.cfg.AllowPrivateIPs && restrictedAddr(addr) {
		return models.Indicator{}, false
	}
	norm := addr.String()
	if x.denied(norm) {
		return models.Indicator{}, false
	}
	if x.allowed(norm) {
		conf = 0
	}
	return models.Indicator{
		IOCType:         models.IndicatorIP,
		RawValue:        raw,
		NormalizedValue: norm,
		Confidence:      conf,
	}, true
}

func (x *Extractor) domainIndicator(raw string, conf float64) (models.Indicator, bool) {
	norm := strings.ToLower(strings.TrimSuffix(raw, "."))
	if x.denied(norm) {
		return models.Indicator{}, false
	}
	// Rejects single-label tokens and bare public suffixes.
	if _, err := publicsuffix.EffectiveTLDPlusOne(norm); err != nil {
		return models.Indicator{}, false
	}
	if _, icann := publicsuffix.PublicSuffix(norm); !icann {
		// Unknown TLDs stay extractable but ambiguous.
		conf *= 0.75
	}
	if x.allowed(norm) {
		conf = 0
	}
	return models.Indicator{
		IOCType:         models.IndicatorDomain,
		RawValue:        raw,
		NormalizedValue: norm,
		Confidence:      conf,
	}, true
}

func (x *Extractor) add(candidates map[string]models.Indicator, ind models.Indicator) {
	if existing, ok := candidates[ind.NormalizedValue]; ok && existing.Confidence >= ind.Confidence {
		return
	}
	candidates[ind.NormalizedValue] = ind
}

func (x *Extractor) denied(value string) bool {
	return matchesList(x.deny, value)
}

func (x *Extractor) allowed(value string) bool {
	return matchesList(x.allow, value)
}

func matchesList(list []string, value string) bool {
	for _, entry := range list {
		if value == entry || strings.HasSuffix(value, "."+entry) {
			return true
		}
	}
	return false
}

func restrictedAddr(addr netip.Addr) bool {
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// versionShaped reports whether a dotted-quad match is preceded by a version
// marker ("version 1.2.3.4"), a common IP false positive in release notes
// quoted inside reports.
func versionShaped(text string, start int) bool {
	i := start
	for i > 0 {
		switch text[i-1] {
		case ' ', '\t', ':', '=':
			i--
			continue
		}
		break
	}
	j := i
	for j > 0 && isLetter(text[j-1]) {
		j--
	}
	switch strings.ToLower(text[j:i]) {
	case "version", "ver", "v", "build", "release":
		return true
	}
	return false
}

func baseConfidence(t models.IndicatorType) float64 {
	for _, r := range defaultRules {
		if r.Type == t {
			return r.BaseConfidence
		}
	}
	return 0.5
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
