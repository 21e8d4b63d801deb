package fallback

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

type connection struct {
	name        string
	position    string
	connectedOn string
}

var sampleConnections = []connection{
	{name: "John Smith", position: "Software Engineer at Tech Company", connectedOn: "March 15, 2023"},
	{name: "Sarah Johnson", position: "Product Manager at Innovation Inc.", connectedOn: "January 8, 2023"},
	{name: "Michael Brown", position: "Data Scientist at Analytics Corp", connectedOn: "April 22, 2023"},
}

// LinkedIn lists sample connections for the query.
func LinkedIn(query string) string {
	blocks := make([]string, 0, len(sampleConnections))
	for _, c := range sampleConnections {
		blocks = append(blocks, fmt.Sprintf("👤 **%s**\n*%s*\n🔗 Connected on: %s", c.name, c.position, c.connectedOn))
	}
	return fmt.Sprintf("Here are some connections that might be relevant to \"%s\" in your LinkedIn network:\n\n%s\n\nWould you like more information about any of these connections?",
		query, strings.Join(blocks, "\n\n"))
}

var (
	personRe   = regexp.MustCompile(`(?m)^([A-Z][a-z]+ [A-Z][a-z]+)`)
	linkWordRe = regexp.MustCompile(`(?i)connected|connection|profile`)
	jobTitleRe = regexp.MustCompile(`(?i)software engineer|developer|manager|director|ceo|cto|vp|president`)
)

// FormatLinkedIn decorates model output about connections. Output shorter
// than 20 characters is replaced by the sample listing.
func FormatLinkedIn(text, query string) string {
	if strings.Contains(text, "👤") || strings.Contains(text, "🔗") || strings.Contains(text, "**") {
		return text
	}
	if utf8.RuneCountInString(text) < 20 {
		return LinkedIn(query)
	}
	out := personRe.ReplaceAllString(text, "👤 **${1}**")
	out = linkWordRe.ReplaceAllString(out, "🔗 $0")
	return jobTitleRe.ReplaceAllString(out, "*$0*")
}
