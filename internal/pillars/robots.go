package pillars

import "strings"

// robotsRules are the rules that apply to one user agent.
type robotsRules struct {
	allow    []string
	disallow []string
}

// blocksRoot reports whether the rules shut the agent out of the whole site.
func (r robotsRules) blocksRoot() bool {
	for _, a := range r.allow {
		if a == "/" {
			return false
		}
	}
	for _, d := range r.disallow {
		if d == "/" || d == "/*" {
			return true
		}
	}
	return false
}

type robotsFile struct {
	groups   []robotsGroup
	sitemaps []string
}

type robotsGroup struct {
	agents []string
	rules  robotsRules
}

// parseRobots splits a robots.txt body into user-agent groups. Consecutive
// user-agent lines share one group.
func parseRobots(body string) robotsFile {
	var (
		rf            robotsFile
		current       *robotsGroup
		lastDirective string
	)
	for _, line := range strings.Split(body, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		directive := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		switch directive {
		case "user-agent":
			if lastDirective != "user-agent" || current == nil {
				rf.groups = append(rf.groups, robotsGroup{})
				current = &rf.groups[len(rf.groups)-1]
			}
			current.agents = append(current.agents, strings.ToLower(value))
		case "allow":
			if current != nil && value != "" {
				current.rules.allow = append(current.rules.allow, value)
			}
		case "disallow":
			if current != nil && value != "" {
				current.rules.disallow = append(current.rules.disallow, value)
			}
		case "sitemap":
			if value != "" {
				rf.sitemaps = append(rf.sitemaps, value)
			}
		}
		lastDirective = directive
	}
	return rf
}

// rulesFor returns the merged rules of every group naming the agent, or the
// wildcard group when none does.
func (rf robotsFile) rulesFor(agent string) robotsRules {
	agent = strings.ToLower(agent)
	var specific, wildcard robotsRules
	matched := false
	for _, g := range rf.groups {
		for _, a := range g.agents {
			switch {
			case a == "*":
				wildcard.allow = append(wildcard.allow, g.rules.allow...)
				wildcard.disallow = append(wildcard.disallow, g.rules.disallow...)
			case matchesUA(a, agent):
				matched = true
				specific.allow = append(specific.allow, g.rules.allow...)
				specific.disallow = append(specific.disallow, g.rules.disallow...)
			}
		}
	}
	if matched {
		return specific
	}
	return wildcard
}

func matchesUA(pattern, agent string) bool {
	return pattern != "" && pattern != "*" && (pattern == agent || strings.HasPrefix(agent, pattern))
}
