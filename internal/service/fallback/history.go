package fallback

import (
	"fmt"
	"strings"

	"assistanthub/internal/config"
	"assistanthub/internal/service/retrieval"
)

type historySource struct {
	name     string
	bullet   string
	seenVerb string
	closing  string
}

var historySources = map[string]historySource{
	config.AssistantYouTube: {
		name:     "YouTube history",
		bullet:   "🎬",
		seenVerb: "Watched on",
		closing:  "Based on your viewing history, you might be interested in videos related to this topic.",
	},
	config.AssistantChrome: {
		name:     "Chrome browsing history",
		bullet:   "📌",
		seenVerb: "Visited on",
		closing:  "Based on your browsing history, you might be interested in websites related to this topic.",
	},
}

func sourceFor(kind string) historySource {
	if s, ok := historySources[kind]; ok {
		return s
	}
	return historySource{name: kind, bullet: "•", seenVerb: "Seen on"}
}

// History summarises retrieved context without a model.
func History(kind, query, context string) string {
	src := sourceFor(kind)
	items := retrieval.ParseContext(context)
	if len(items) == 0 {
		return fmt.Sprintf("I couldn't find any information about \"%s\" in your %s.", query, src.name)
	}

	blocks := make([]string, 0, len(items))
	for _, it := range items {
		var b strings.Builder
		fmt.Fprintf(&b, "%s **%s**\n*%s: %s*", src.bullet, it.Title, src.seenVerb, it.Timestamp)
		if it.Link != "" && it.Link != "N/A" {
			fmt.Fprintf(&b, "\n🔗 %s", it.Link)
		}
		blocks = append(blocks, b.String())
	}
	out := fmt.Sprintf("I found the following information about \"%s\" in your %s:\n\n%s", query, src.name, strings.Join(blocks, "\n\n"))
	if src.closing != "" {
		out += "\n\n" + src.closing
	}
	return out
}

// Unavailable is returned when neither the model nor retrieval produced anything.
func Unavailable(kind string) string {
	return fmt.Sprintf("I'm having trouble accessing your %s data right now. Please try again later.", sourceFor(kind).name)
}
