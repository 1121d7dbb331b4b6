package responder

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/dialogd/internal/arbitration"
	"github.com/fyrsmithlabs/dialogd/internal/conversation"
	"github.com/fyrsmithlabs/dialogd/internal/detector"
	"github.com/fyrsmithlabs/dialogd/internal/element"
	"github.com/fyrsmithlabs/dialogd/internal/memory"
)

const basePrompt = "You are a calm, attentive conversational companion. Answer in plain language, in at most a few sentences."

// maxMemoryLines caps how many memory entries reach the prompt.
const maxMemoryLines = 6

// Prompt renders plan as a system instruction.
func Prompt(plan conversation.TurnPlan) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n")

	d := plan.Directive
	switch d.Kind {
	case arbitration.KindBypass:
		b.WriteString("\nThe user may be in danger. Do not explore, analyze or reflect. Acknowledge them warmly, say they deserve support right now, and share these resources exactly:\n")
		for _, r := range d.Payload.Resources {
			b.WriteString("- ")
			b.WriteString(resourceLine(r))
			b.WriteString("\n")
		}
		return b.String()
	case arbitration.KindEngageLoop:
		b.WriteString("\nDo not give advice yet. Reflect back what you heard and ask whether you understood.\n")
	}

	if h := plan.LoopOutcome.Reflection; h != nil {
		if h.Correction {
			b.WriteString("\nYour last reflection missed. Try again with the corrected meaning.\n")
		}
		fmt.Fprintf(&b, "\nParaphrase this in your own words: %q.\n", h.Target)
		if len(h.Focus) > 0 {
			fmt.Fprintf(&b, "Focus on: %s.\n", strings.Join(h.Focus, ", "))
		}
		if h.Archetype != "" {
			fmt.Fprintf(&b, "You may lean on the image of the %s (%s).\n", h.Archetype, h.Symbol)
		}
	} else if plan.LoopOutcome.Reason != "" {
		b.WriteString("\nThe clarification is complete. Summarize the shared understanding briefly.\n")
	}

	tone := plan.Tone
	if d.Payload.SafetyCheckIn {
		b.WriteString("\nGently check in on how the user is doing and whether they are safe before anything else.\n")
	}
	switch d.Payload.Boundary {
	case detector.BoundaryStop:
		b.WriteString("\nThe user asked to stop. Respect it and do not return to the topic.\n")
	case detector.BoundarySwitch:
		b.WriteString("\nThe user wants to change the subject. Follow their lead.\n")
	case detector.BoundarySlow:
		b.WriteString("\nThe user asked you to slow down. One small thing at a time.\n")
	}
	if tone.Urgent {
		b.WriteString("\nThe user is pressed for time. Answer directly, no clarifying questions.\n")
	}
	if tone.Pause {
		b.WriteString("\nLeave space. A short, quiet reply is better than a full one.\n")
	}
	fmt.Fprintf(&b, "\nPace: %s.", tone.Pace)
	if tone.Element != element.Unknown && tone.Archetype != "" {
		fmt.Fprintf(&b, " Tone: %s, in the manner of the %s.", tone.Element, tone.Archetype)
	}
	b.WriteString("\n")

	if lines := memoryLines(plan.Memory); len(lines) > 0 {
		b.WriteString("\nWhat you remember about this user:\n")
		for _, l := range lines {
			b.WriteString("- ")
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func resourceLine(r arbitration.Resource) string {
	parts := []string{r.Name}
	if r.Contact != "" {
		parts = append(parts, r.Contact)
	}
	if r.URL != "" {
		parts = append(parts, r.URL)
	}
	line := strings.Join(parts, " | ")
	if r.Note != "" {
		line += " (" + r.Note + ")"
	}
	return line
}

func memoryLines(c memory.Context) []string {
	var out []string
	for _, t := range memory.Tiers {
		for _, e := range c.Entries(t) {
			if len(out) == maxMemoryLines {
				return out
			}
			out = append(out, strings.TrimSpace(e.Content))
		}
	}
	return out
}
