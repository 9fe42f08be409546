// Package chat adapts the external chat transport. The transport's wire
// details stay inside this package; the rest of the system consumes inbound
// turns and sends rendered text through the Delivery interface.
package chat

import (
	"context"
	"strings"

	"github.com/okian/meetstake/internal/domain/model"
)

// TurnKind classifies an inbound user event.
type TurnKind string

// Inbound turn kinds.
const (
	KindCommand   TurnKind = "command"
	KindText      TurnKind = "text"
	KindLocation  TurnKind = "location"
	KindPhoto     TurnKind = "photo"
	KindSelection TurnKind = "selection"
)

// Turn is one inbound user event, already normalized from the wire format.
type Turn struct {
	UserID   int64
	UserName string
	Kind     TurnKind

	Text      string          // KindText
	Command   string          // KindCommand, without the leading slash
	Args      string          // KindCommand, remainder of the line
	Location  *model.Location // KindLocation
	PhotoRef  string          // KindPhoto, transport file reference
	Selection string          // KindSelection, option payload
}

// Delivery is the transport surface the service consumes.
type Delivery interface {
	// Updates returns the inbound turn stream. The channel closes when ctx
	// is done or the transport shuts down.
	Updates(ctx context.Context) <-chan Turn

	// SendText delivers a plain text message to a user.
	SendText(ctx context.Context, userID int64, text string) error

	// SendOptions delivers a prompt with tappable options; a tap arrives
	// back as a KindSelection turn carrying the option payload.
	SendOptions(ctx context.Context, userID int64, text string, options []string) error
}

// ParseCommand splits a command line into its name and arguments. Returns
// ok=false when the text does not start with the control marker. A bot
// mention suffix ("/create_event@SomeBot") is stripped.
func ParseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	rest := strings.TrimPrefix(text, "/")
	name, tail, _ := strings.Cut(rest, " ")
	if name == "" {
		return "", "", false
	}
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return name, strings.TrimSpace(tail), true
}
