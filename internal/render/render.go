// Package render formats conversation events for the terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/duetlabs/persona-duet/internal/model"
)

var (
	primaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	secondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	bannerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
)

// Renderer colors conversation output per speaker.
type Renderer struct {
	primaryName string
}

// New creates a Renderer; the primary persona gets the first accent color.
func New(primaryName string) *Renderer {
	return &Renderer{primaryName: primaryName}
}

func (r *Renderer) speakerStyle(name string) lipgloss.Style {
	switch name {
	case model.SpeakerUser:
		return userStyle
	case r.primaryName:
		return primaryStyle
	default:
		return secondaryStyle
	}
}

// Event renders one conversation event as a terminal line (or block).
// Thinking events render as a transient-looking dim line.
func (r *Renderer) Event(ev model.ConversationEvent) string {
	switch ev.Type {
	case model.EventTypeStarted:
		topic, _ := ev.Metadata["topic"].(string)
		line := "conversation started"
		if topic != "" {
			line += ": " + topic
		}
		return bannerStyle.Render("── " + line + " ──")

	case model.EventTypeThinking:
		return dimStyle.Render(fmt.Sprintf("%s is thinking…", ev.Speaker))

	case model.EventTypeMessage:
		if ev.Message == nil {
			return ""
		}
		header := r.speakerStyle(ev.Message.SpeakerName).Render(ev.Message.SpeakerName) +
			dimStyle.Render(" "+ev.Message.Timestamp.Local().Format("15:04:05"))
		return header + "\n" + ev.Message.Content + "\n"

	case model.EventTypeError:
		return errorStyle.Render("✗ " + ev.Reason)

	case model.EventTypeEnded:
		total, _ := ev.Metadata["total_messages"].(int)
		return bannerStyle.Render(fmt.Sprintf("── conversation ended (%d messages) ──", total))

	default:
		return dimStyle.Render(string(ev.Type))
	}
}

// Statistics renders the end-of-conversation statistics block.
func (r *Renderer) Statistics(stats model.ConversationStatistics) string {
	var b strings.Builder
	b.WriteString(bannerStyle.Render("conversation statistics") + "\n")
	fmt.Fprintf(&b, "  messages: %d\n", stats.TotalMessages)
	for name, n := range stats.MessagesByPersona {
		fmt.Fprintf(&b, "    %s: %d\n", name, n)
	}
	fmt.Fprintf(&b, "  average length: %.0f chars\n", stats.AverageLength)
	if stats.ResponseTimes.Average > 0 {
		fmt.Fprintf(&b, "  response time: avg %s (min %s, max %s)\n",
			stats.ResponseTimes.Average.Round(time.Millisecond),
			stats.ResponseTimes.Min.Round(time.Millisecond),
			stats.ResponseTimes.Max.Round(time.Millisecond),
		)
	}
	if len(stats.TopicProgression) > 0 {
		fmt.Fprintf(&b, "  topics: %s\n", strings.Join(stats.TopicProgression, ", "))
	}
	if stats.TopicChanges > 0 {
		fmt.Fprintf(&b, "  topic changes: %d\n", stats.TopicChanges)
	}
	for _, insight := range stats.Insights {
		b.WriteString(dimStyle.Render("  note: "+insight) + "\n")
	}
	return b.String()
}

// Summary renders a conversation summary block.
func (r *Renderer) Summary(sum *model.ConversationSummary) string {
	var b strings.Builder
	b.WriteString(bannerStyle.Render("conversation summary") + "\n")
	b.WriteString("  " + sum.Content + "\n")
	if len(sum.KeyTopics) > 0 {
		fmt.Fprintf(&b, "  key topics: %s\n", strings.Join(sum.KeyTopics, ", "))
	}
	for name, part := range sum.Contributions {
		fmt.Fprintf(&b, "  %s: %s\n", name, part)
	}
	return b.String()
}

// PersonaList renders the registry contents for the personas command.
func (r *Renderer) PersonaList(keys []string, personas []model.PersonaConfig, violations [][]string) string {
	var b strings.Builder
	for i, p := range personas {
		b.WriteString(primaryStyle.Render(keys[i]))
		b.WriteString(dimStyle.Render(" (" + p.DisplayName + ")"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  %s\n", p.Personality)
		fmt.Fprintf(&b, "  style: %s\n", p.SpeakingStyle)
		fmt.Fprintf(&b, "  interests: %s\n", strings.Join(p.Interests, ", "))
		if len(violations[i]) > 0 {
			b.WriteString(errorStyle.Render("  invalid: "+strings.Join(violations[i], "; ")) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
