package retrieval

import (
	"fmt"
	"strings"

	"assistanthub/internal/config"
	"assistanthub/internal/models"
)

// Layout names the metadata fields of one history index.
type Layout struct {
	TimeKey string
	LinkKey string
}

var layouts = map[string]Layout{
	config.AssistantYouTube: {TimeKey: "Watched At", LinkKey: "Video Link"},
	config.AssistantChrome:  {TimeKey: "Timestamp", LinkKey: "Domain"},
}

// LayoutFor returns the metadata layout of a history assistant.
func LayoutFor(assistant string) (Layout, bool) {
	l, ok := layouts[assistant]
	return l, ok
}

// Block renders match metadata as the three-line context entry.
func (l Layout) Block(md map[string]any) string {
	link := metaString(md, l.LinkKey)
	if link == "" {
		link = "N/A"
	}
	return fmt.Sprintf("Title: %s\n%s: %s\n%s: %s",
		metaString(md, "Title"),
		l.TimeKey, metaString(md, l.TimeKey),
		l.LinkKey, link,
	)
}

func metaString(md map[string]any, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ParseContext splits a context string built by Retriever.Context back into
// items. Each block is read positionally: title, timestamp, then link.
func ParseContext(text string) []models.ContextItem {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var items []models.ContextItem
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		item := models.ContextItem{Title: lineValue(lines[0]), Link: "N/A"}
		if len(lines) > 1 {
			item.Timestamp = lineValue(lines[1])
		}
		if len(lines) > 2 {
			if link := lineValue(lines[2]); link != "" {
				item.Link = link
			}
		}
		items = append(items, item)
	}
	return items
}

func lineValue(line string) string {
	if _, v, ok := strings.Cut(line, ": "); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(line)
}
