package core

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"gwi.com/shot-suggestor/internal/store"
)

var (
	// "<anything> shot[:-] <description>", matched up to the first whole word "shot".
	shotLinePattern = regexp.MustCompile(`(?i)^(.*?\bshot)\b\s*[:\-–—]?\s*(.*)$`)
	// Leading "1.", "2)", "3:", "-", "*", "•", "#", ">" list or heading markers.
	listMarkerPattern = regexp.MustCompile(`^(?:\d+\s*[.):\]]|[-*•#>]+)\s*`)
	separatorPattern  = regexp.MustCompile(`^[-*_=~#\s]+$`)
)

var preamblePrefixes = []string{"here are", "here is", "here's", "sure", "certainly", "okay", "ok,"}

// ParseShots turns free-form model output into ordered shots numbered 1..N.
// Preamble lines, separators and generic headings are skipped. A heading that
// names only a shot type ("Wide shot:") becomes the name of the line below it.
// Lines that do not name a shot type get the synthetic title "Shot N". Parsing
// stops after max shots; a max of zero or less means no limit.
func ParseShots(text string, max int) []store.Shot {
	shots := []store.Shot{}
	add := func(name, desc string) bool {
		num := len(shots) + 1
		if name == "" {
			name = fmt.Sprintf("Shot %d", num)
		}
		shots = append(shots, store.Shot{Num: num, Name: name, Description: desc})
		return max > 0 && len(shots) >= max
	}

	// Shot type from a heading line that is still waiting for its description.
	pending := ""
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		clean := cleanShotLine(line)
		if clean == "" || isBoilerplate(clean) {
			continue
		}

		if strings.HasSuffix(clean, ":") {
			if name := headingShotName(clean); name != "" {
				if pending != "" && add(pending, pending) {
					return shots
				}
				pending = name
			}
			continue
		}

		name, desc := splitShotLine(clean)
		if pending != "" {
			if name == "" {
				name = pending
			} else if add(pending, pending) {
				return shots
			}
			pending = ""
		}
		if add(name, desc) {
			return shots
		}
	}
	if pending != "" {
		add(pending, pending)
	}
	return shots
}

func cleanShotLine(line string) string {
	clean := strings.TrimSpace(line)
	clean = strings.ReplaceAll(clean, "**", "")
	clean = strings.ReplaceAll(clean, "__", "")
	for {
		stripped := strings.TrimSpace(listMarkerPattern.ReplaceAllString(clean, ""))
		if stripped == clean {
			break
		}
		clean = stripped
	}
	return clean
}

func isBoilerplate(line string) bool {
	if separatorPattern.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, prefix := range preamblePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// headingShotName returns the shot type of a heading such as "Wide shot:", or
// "" for headings like "Shot list:" that carry more than a shot type.
func headingShotName(line string) string {
	m := shotLinePattern.FindStringSubmatch(strings.TrimSuffix(line, ":"))
	if m == nil || strings.TrimSpace(m[2]) != "" {
		return ""
	}
	return capitalize(strings.TrimSpace(m[1]))
}

// splitShotLine returns an empty name when the line does not name a shot type.
func splitShotLine(line string) (name, desc string) {
	m := shotLinePattern.FindStringSubmatch(line)
	if m == nil {
		return "", line
	}
	name = capitalize(strings.TrimSpace(m[1]))
	desc = strings.TrimSpace(m[2])
	if desc == "" {
		desc = line
	}
	return name, desc
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
