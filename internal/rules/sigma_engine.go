package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"ctiflow/pkg/models"
)

var tacticTagRegex = regexp.MustCompile(`^attack\.([a-z_-]+)$`)

// SigmaLoadStats tracks the number of loaded and skipped rules.
type SigmaLoadStats struct {
	TotalFiles     int
	Loaded         int
	SkippedComplex int
	SkippedInvalid int
}

type compiledSigmaRule struct {
	rule    sigma.Rule
	eval    *sigmaevaluator.RuleEvaluator
	tactics []string
}

// SigmaEngine evaluates Sigma rules against normalized report events.
// Keyword-style rules match against the report text; field matchers see the
// event's source, incident type and sector.
type SigmaEngine struct {
	rules []compiledSigmaRule
	ctx   context.Context
}

// NewSigmaEngine loads Sigma rules from a file or directory and compiles
// evaluators. Unsupported rules are skipped and counted in stats.
func NewSigmaEngine(path string) (*SigmaEngine, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve rule path: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule path: %w", err)
	}

	files := make([]string, 0, 64)
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk rule directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	compiled := make([]compiledSigmaRule, 0, len(files))
	for _, ruleFile := range files {
		rule, err := parseSigmaRuleFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}

		if ok, _ := isSupportedRule(rule); !ok {
			stats.SkippedComplex++
			continue
		}

		tactics := tacticsFromTags(rule.Tags)
		if len(tactics) == 0 {
			stats.SkippedInvalid++
			continue
		}

		compiled = append(compiled, compiledSigmaRule{
			rule:    rule,
			eval:    sigmaevaluator.ForRule(rule),
			tactics: tactics,
		})
		stats.Loaded++
	}

	return &SigmaEngine{rules: compiled, ctx: context.Background()}, stats, nil
}

// Apply evaluates all loaded rules and returns the matched tactic tags,
// sorted and deduplicated.
func (e *SigmaEngine) Apply(event *models.Event) []string {
	if e == nil || event == nil || len(e.rules) == 0 {
		return nil
	}

	eventMap := sigmaEventFrom(event)
	seen := make(map[string]struct{}, 8)
	for _, rule := range e.rules {
		res, err := rule.eval.Matches(e.ctx, eventMap)
		if err != nil {
			continue
		}
		if !res.Match {
			continue
		}
		for _, tactic := range rule.tactics {
			seen[tactic] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for tactic := range seen {
		out = append(out, tactic)
	}
	sort.Strings(out)
	return out
}

func parseSigmaRuleFile(path string) (sigma.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("read sigma rule %s: %w", path, err)
	}
	rule, err := sigma.ParseRule(raw)
	if err != nil {
		return sigma.Rule{}, fmt.Errorf("parse sigma rule %s: %w", path, err)
	}
	return rule, nil
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

// isSupportedRule accepts keyword and simple field-matcher rules. Report
// events are single documents, so aggregations and timeframes cannot apply.
func isSupportedRule(rule sigma.Rule) (bool, string) {
	if rule.Detection.Timeframe > 0 {
		return false, "timeframe is not supported"
	}

	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return false, "aggregation condition is not supported"
		}
		if !isSimpleSearchExpression(cond.Search) {
			return false, "complex condition expression is not supported"
		}
	}

	return true, ""
}

func isSimpleSearchExpression(expr sigma.SearchExpr) bool {
	switch e := expr.(type) {
	case sigma.SearchIdentifier:
		return true
	case sigma.And:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Or:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigma.Not:
		return isSimpleSearchExpression(e.Expr)
	default:
		return false
	}
}

func sigmaEventFrom(event *models.Event) map[string]interface{} {
	return map[string]interface{}{
		"message":       event.NormalizedText,
		"source":        event.Source,
		"incident_type": event.IncidentType,
		"sector":        event.Sector,
	}
}

// tacticsFromTags extracts tactic names from attack.* tags, normalizing
// underscores to the dashed convention ("attack.initial_access" ->
// "initial-access"). Technique tags (attack.tNNNN) are ignored here.
func tacticsFromTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		m := tacticTagRegex.FindStringSubmatch(strings.ToLower(strings.TrimSpace(tag)))
		if m == nil {
			continue
		}
		out = append(out, strings.ReplaceAll(m[1], "_", "-"))
	}
	sort.Strings(out)
	return out
}
