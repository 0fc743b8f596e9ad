package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// FeedMessageType represents the type of activity feed message
type FeedMessageType string

const (
	// MsgTypeSubmit indicates a batch was submitted
	MsgTypeSubmit FeedMessageType = "submit"
	// MsgTypeResult indicates a job delivered values
	MsgTypeResult FeedMessageType = "result"
	// MsgTypeFailure indicates a job failed
	MsgTypeFailure FeedMessageType = "failure"
	// MsgTypeStatus indicates a status update
	MsgTypeStatus FeedMessageType = "status"
	// MsgTypeError indicates an error occurred
	MsgTypeError FeedMessageType = "error"
	// MsgTypeDone indicates a run reached a terminal state
	MsgTypeDone FeedMessageType = "done"
)

// FeedMessage is a single entry in the activity feed
type FeedMessage struct {
	Timestamp time.Time
	Type      FeedMessageType
	Text      string
}

// Feed manages the scrolling activity feed shown beside the grid
type Feed struct {
	Messages    []FeedMessage
	Viewport    viewport.Model
	MaxMessages int
}

// NewFeed creates a feed with the given dimensions
func NewFeed(width, height int) *Feed {
	vp := viewport.New(width, height)
	return &Feed{
		Messages:    make([]FeedMessage, 0),
		Viewport:    vp,
		MaxMessages: 200,
	}
}

// Add appends a message and scrolls to the bottom
func (f *Feed) Add(msgType FeedMessageType, format string, args ...any) {
	f.Messages = append(f.Messages, FeedMessage{
		Timestamp: time.Now(),
		Type:      msgType,
		Text:      fmt.Sprintf(format, args...),
	})
	if f.MaxMessages > 0 && len(f.Messages) > f.MaxMessages {
		f.Messages = f.Messages[len(f.Messages)-f.MaxMessages:]
	}
	f.Viewport.SetContent(f.Render())
	f.Viewport.GotoBottom()
}

// SetSize updates the feed dimensions
func (f *Feed) SetSize(width, height int) {
	f.Viewport.Width = width
	f.Viewport.Height = height
	f.Viewport.SetContent(f.Render())
	f.Viewport.GotoBottom()
}

// View returns the viewport view for Bubble Tea
func (f *Feed) View() string {
	return f.Viewport.View()
}

// Render renders all messages to a string
func (f *Feed) Render() string {
	if len(f.Messages) == 0 {
		return MutedStyle.Render("  No activity yet.")
	}

	var lines []string
	for _, msg := range f.Messages {
		lines = append(lines, f.renderMessage(msg))
	}
	return strings.Join(lines, "\n")
}

func (f *Feed) renderMessage(msg FeedMessage) string {
	icon, style := f.messageStyle(msg.Type)
	timestamp := MutedStyle.Render(msg.Timestamp.Format("15:04:05"))
	return fmt.Sprintf("%s %s %s", timestamp, style.Render(icon), BodyStyle.Render(msg.Text))
}

func (f *Feed) messageStyle(msgType FeedMessageType) (string, lipgloss.Style) {
	switch msgType {
	case MsgTypeSubmit:
		return "[>]", lipgloss.NewStyle().Foreground(ColorSecondary)
	case MsgTypeResult:
		return "[<]", lipgloss.NewStyle().Foreground(ColorSuccess)
	case MsgTypeFailure:
		return "[!]", lipgloss.NewStyle().Foreground(ColorWarning)
	case MsgTypeError:
		return "[!]", lipgloss.NewStyle().Foreground(ColorError)
	case MsgTypeDone:
		return "[x]", lipgloss.NewStyle().Foreground(ColorSuccess)
	default:
		return "[-]", lipgloss.NewStyle().Foreground(ColorPrimary)
	}
}
