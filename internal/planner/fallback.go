// internal/planner/fallback.go
package planner

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// typoFixes folds common misspellings of key verbs and sites before the
// rules run. The instruction channel is free text from a human; "opne
// chorme" should not break the plan.
var typoFixes = map[string]string{
	"opne":    "open",
	"oepn":    "open",
	"serach":  "search",
	"seach":   "search",
	"searhc":  "search",
	"gogle":   "google",
	"googel":  "google",
	"chorme":  "chrome",
	"chrme":   "chrome",
	"firefx":  "firefox",
	"youtub":  "youtube",
	"yotube":  "youtube",
	"webiste": "website",
	"wesbite": "website",
}

// knownSites maps spoken names to URLs for the visit rule.
var knownSites = map[string]string{
	"google":        "google.com",
	"youtube":       "youtube.com",
	"github":        "github.com",
	"wikipedia":     "wikipedia.org",
	"gmail":         "gmail.com",
	"stackoverflow": "stackoverflow.com",
	"reddit":        "reddit.com",
	"amazon":        "amazon.com",
}

// Fallback is the deterministic planner used when the oracle is down or
// answers with garbage.
type Fallback struct {
	logger *zap.Logger
}

// NewFallback builds the fallback planner.
func NewFallback(logger *zap.Logger) *Fallback {
	return &Fallback{logger: logger.Named("planner.fallback")}
}

// Plan applies the rule table to the instruction. The last resort is a
// single literal step, so the result is never empty.
func (f *Fallback) Plan(instruction string) []schemas.Step {
	normalized := normalize(instruction)
	f.logger.Info("Planning without oracle", zap.String("instruction", normalized))

	// Rule: search for X [on site]
	if term := ExtractSearchTerm(normalized); term != "" {
		return index(searchSequence(normalized, term))
	}

	// Rule: open/launch/start <app>
	if app := extractAppName(normalized); app != "" {
		if url, ok := knownSites[app]; ok {
			return index(visitSequence(url))
		}
		return index([]string{
			fmt.Sprintf("open the %s application", app),
			fmt.Sprintf("wait for %s to finish loading", app),
		})
	}

	// Rule: go to / visit <site>
	if site := extractSite(normalized); site != "" {
		return index(visitSequence(site))
	}

	// Last resort: run the instruction as a single literal step.
	return index([]string{normalized})
}

// normalize lowercases and fixes known typos token by token.
func normalize(instruction string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(instruction)))
	for i, w := range words {
		bare := strings.Trim(w, ".,!?")
		if fix, ok := typoFixes[bare]; ok {
			words[i] = strings.Replace(w, bare, fix, 1)
		}
	}
	return strings.Join(words, " ")
}

// ExtractSearchTerm pulls the query out of "search [for] X [on site]"
// style instructions. Empty when the instruction is not a search.
func ExtractSearchTerm(instruction string) string {
	lower := strings.ToLower(instruction)
	idx := strings.Index(lower, "search")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(lower[idx+len("search"):])
	rest = strings.TrimPrefix(rest, "for ")

	// Strip a trailing "on <site>" / "in <site>" clause.
	for _, sep := range []string{" on ", " in ", " using "} {
		if cut := strings.Index(rest, sep); cut >= 0 {
			rest = rest[:cut]
		}
	}
	return strings.TrimSpace(rest)
}

// searchSite picks the site a search instruction names, defaulting to
// google.
func searchSite(instruction string) string {
	for name, url := range knownSites {
		if strings.Contains(instruction, name) && name != "google" {
			if strings.Contains(instruction, " on "+name) || strings.Contains(instruction, " in "+name) {
				return url
			}
		}
	}
	return "google.com"
}

func searchSequence(instruction, term string) []string {
	site := searchSite(instruction)
	return []string{
		"open the web browser",
		fmt.Sprintf("go to %s", site),
		"wait for the page to finish loading",
		fmt.Sprintf("type %s into the search box", term),
		"press enter",
		"click the first result",
	}
}

func visitSequence(site string) []string {
	return []string{
		"open the web browser",
		fmt.Sprintf("go to %s", site),
		"wait for the page to finish loading",
	}
}

// extractAppName pulls the target of open/launch/start verbs.
func extractAppName(instruction string) string {
	for _, verb := range []string{"open ", "launch ", "start "} {
		if idx := strings.Index(instruction, verb); idx >= 0 {
			rest := strings.TrimSpace(instruction[idx+len(verb):])
			rest = strings.TrimPrefix(rest, "the ")
			if cut := strings.IndexAny(rest, ".,;"); cut >= 0 {
				rest = rest[:cut]
			}
			// First two words at most; "open chrome and search" should
			// yield "chrome".
			words := strings.Fields(rest)
			if len(words) == 0 {
				continue
			}
			if len(words) > 1 && (words[1] == "and" || words[1] == "then") {
				return words[0]
			}
			if len(words) > 2 {
				return strings.Join(words[:2], " ")
			}
			return strings.Join(words, " ")
		}
	}
	return ""
}

// extractSite pulls the target of "go to" / "visit" verbs.
func extractSite(instruction string) string {
	for _, verb := range []string{"go to ", "visit ", "navigate to "} {
		if idx := strings.Index(instruction, verb); idx >= 0 {
			rest := strings.TrimSpace(instruction[idx+len(verb):])
			words := strings.Fields(rest)
			if len(words) == 0 {
				continue
			}
			site := strings.Trim(words[0], ".,!?")
			if url, ok := knownSites[site]; ok {
				return url
			}
			if strings.Contains(site, ".") {
				return site
			}
		}
	}
	return ""
}

func index(descriptions []string) []schemas.Step {
	steps := make([]schemas.Step, len(descriptions))
	for i, d := range descriptions {
		steps[i] = schemas.Step{Index: i, Description: d}
	}
	return steps
}
