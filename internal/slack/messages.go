package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/prite36/irrigation-remote/internal/engine"
	"github.com/prite36/irrigation-remote/internal/models"
)

func levelEmoji(level engine.Level) string {
	switch level {
	case engine.LevelSuccess:
		return ":white_check_mark:"
	case engine.LevelWarning:
		return ":warning:"
	case engine.LevelError:
		return ":x:"
	default:
		return ":droplet:"
	}
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

// NewInfoMessage builds a plain informational message.
func NewInfoMessage(title, message string) slack.MsgOption {
	return slack.MsgOptionCompose(
		slack.MsgOptionText(title+": "+message, false),
		slack.MsgOptionBlocks(
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, true, false)),
			slack.NewSectionBlock(markdown(message), nil, nil),
		),
	)
}

// NewNotificationMessage renders an engine notification.
func NewNotificationMessage(n engine.Notification) slack.MsgOption {
	plant := n.PlantName
	if plant == "" {
		plant = fmt.Sprintf("plant %d", n.PlantID)
	}
	heading := fmt.Sprintf("%s *%s* - %s", levelEmoji(n.Level), n.Title, plant)

	blocks := []slack.Block{
		slack.NewSectionBlock(markdown(heading+"\n"+n.Message), nil, nil),
	}
	if n.Event != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			markdown(fmt.Sprintf("`%s` · plant id %d", n.Event, n.PlantID))))
	}
	return slack.MsgOptionCompose(
		slack.MsgOptionText(fmt.Sprintf("%s: %s (%s)", n.Title, n.Message, plant), false),
		slack.MsgOptionBlocks(blocks...),
	)
}

// FormatStatus renders the watering plants as a slash command reply.
func FormatStatus(plants []engine.PlantWatering) string {
	if len(plants) == 0 {
		return "No plant is being watered."
	}
	var b strings.Builder
	b.WriteString("*Watering now*\n")
	for _, p := range plants {
		name := p.State.CurrentPlantName
		if name == "" {
			name = fmt.Sprintf("plant %d", p.PlantID)
		}
		switch p.State.Mode {
		case models.ModeManual:
			fmt.Fprintf(&b, "• %s (#%d) manual, %s left\n", name, p.PlantID, formatSeconds(p.State.WateringTimeLeftSec))
		default:
			fmt.Fprintf(&b, "• %s (#%d) %s\n", name, p.PlantID, p.State.Mode)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSeconds(sec int) string {
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
