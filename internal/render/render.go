// Package render formats orchestrator outcomes as chat messages. All
// user-facing wording lives here; the orchestrator deals in results and
// errors only.
package render

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/meetstake/internal/adapters/ledger"
	"github.com/okian/meetstake/internal/domain/geofence"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/okian/meetstake/internal/orchestrator"
	"github.com/shopspring/decimal"
)

// Display constants.
const (
	dateLayout   = "Mon, 02 Jan 2006 15:04"
	txDisplayLen = 12 // leading hash characters shown to users
)

// Renderer formats amounts, events and outcomes for chat delivery.
type Renderer struct {
	currency string // ticker shown after amounts
	network  string // human network label shown with tx hashes
}

// New creates a Renderer for the given currency ticker and network label.
func New(currency, network string) *Renderer {
	return &Renderer{currency: currency, network: network}
}

// Amount renders a stake with the currency ticker.
func (r *Renderer) Amount(d decimal.Decimal) string {
	return d.String() + " " + r.currency
}

// tx renders a shortened transaction hash with the network label.
func (r *Renderer) tx(h ledger.TxHandle) string {
	s := string(h)
	if len(s) > txDisplayLen {
		s = s[:txDisplayLen] + "…"
	}
	return fmt.Sprintf("%s (%s)", s, r.network)
}

// Help lists the available commands.
func (r *Renderer) Help() string {
	return strings.Join([]string{
		"Here's what I can do:",
		"/create_event - start a staked event",
		"/join_event - lock your stake into an event",
		"/attend - check in at an event you joined",
		"/finalize <id> - settle your event and split the pool",
		"/memory - add a photo memory to an event",
		"/memories <id> - see an event's memories",
		"/events - list events",
		"/balance - show your wallet balance",
		"/cancel - abandon the current conversation",
	}, "\n")
}

// Welcome greets a user, mentioning the fresh wallet on first contact.
func (r *Renderer) Welcome(u model.User, created bool) string {
	if created {
		return fmt.Sprintf("Welcome, %s! I created a wallet for you on %s:\n%s\nFund it to join events.",
			u.Name, r.network, u.Address)
	}
	return fmt.Sprintf("Welcome back, %s.", u.Name)
}

// BalanceLine reports a wallet balance.
func (r *Renderer) BalanceLine(amount decimal.Decimal, address string) string {
	return fmt.Sprintf("Balance of %s:\n%s", address, r.Amount(amount))
}

// EventCreated announces a confirmed event creation.
func (r *Renderer) EventCreated(res orchestrator.CreateEventResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q is on! Event #%d, %s, stake %s.",
		res.Event.Name, res.Event.ID, Deadline(res.Event.When), r.Amount(res.Event.Stake))
	if res.Event.Anchor != nil {
		b.WriteString("\nAttendance will be checked against the event location.")
	} else if res.Event.Venue != "" {
		fmt.Fprintf(&b, "\nVenue: %s.", res.Event.Venue)
	}
	fmt.Fprintf(&b, "\nTx %s", r.tx(res.Tx))
	return b.String()
}

// Joined announces a confirmed stake lock.
func (r *Renderer) Joined(res orchestrator.JoinResult) string {
	return fmt.Sprintf("You're in! %s of your stake is locked for %q until the event settles.\nTx %s",
		r.Amount(res.Event.Stake), res.Event.Name, r.tx(res.Tx))
}

// Attended announces a recorded check-in.
func (r *Renderer) Attended(res orchestrator.AttendanceResult) string {
	if res.Decision == geofence.NotApplicable {
		return fmt.Sprintf("Checked in to %q. The event has no location on record, so no distance check applied.\nTx %s",
			res.Event.Name, r.tx(res.Tx))
	}
	return fmt.Sprintf("You're here! Attendance for %q is on record.\nTx %s",
		res.Event.Name, r.tx(res.Tx))
}

// Finalized announces a settlement.
func (r *Renderer) Finalized(res orchestrator.FinalizeResult) string {
	if res.Attendees == 0 {
		return fmt.Sprintf("%q is settled. Nobody attended; all %d stakes were forfeited to the pool.\nTx %s",
			res.Event.Name, res.Stakers, r.tx(res.Tx))
	}
	return fmt.Sprintf("%q is settled. %d of %d stakers attended and split the pool.\nTx %s",
		res.Event.Name, res.Attendees, res.Stakers, r.tx(res.Tx))
}

// MemoryStored announces a stored memory photo.
func (r *Renderer) MemoryStored(res orchestrator.MemoryResult) string {
	return fmt.Sprintf("Memory saved for %q:\n%s", res.Event.Name, res.URL)
}

// EventList renders events one per line, or a hint when there are none.
func (r *Renderer) EventList(events []model.Event) string {
	if len(events) == 0 {
		return "No events yet. Start one with /create_event."
	}
	var b strings.Builder
	b.WriteString("Events:")
	for _, e := range events {
		status := "open"
		if e.Finalized {
			status = "settled"
		}
		fmt.Fprintf(&b, "\n#%d %s - %s, stake %s (%s)",
			e.ID, e.Name, Deadline(e.When), r.Amount(e.Stake), status)
	}
	return b.String()
}

// MemoryList renders an event's memory links, newest first.
func (r *Renderer) MemoryList(eventName string, urls []string) string {
	if len(urls) == 0 {
		return fmt.Sprintf("No memories for %q yet. Add one with /memory.", eventName)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Memories for %q:", eventName)
	for _, u := range urls {
		b.WriteString("\n" + u)
	}
	return b.String()
}

// Failure maps an operation error to a user-facing message. Unknown errors
// get a generic apology; the detail stays in the logs.
func (r *Renderer) Failure(err error) string {
	var pending *orchestrator.PendingError
	if errors.As(err, &pending) {
		return fmt.Sprintf("Your transaction was submitted but hasn't confirmed yet. Check back shortly.\nTx %s", r.tx(pending.Tx))
	}
	var mirror *orchestrator.MirrorWriteError
	if errors.As(err, &mirror) {
		return fmt.Sprintf("Done and recorded on-chain, but our records may be briefly stale. Keep this for reference:\nTx %s", r.tx(mirror.Tx))
	}

	switch {
	case errors.Is(err, orchestrator.ErrDuplicateIntent):
		return "Already done. That request was processed before."
	case errors.Is(err, orchestrator.ErrEventNotFound):
		return "I can't find that event."
	case errors.Is(err, orchestrator.ErrEventFinalized):
		return "That event is already settled."
	case errors.Is(err, orchestrator.ErrAlreadyJoined):
		return "You already joined this event; your stake is locked."
	case errors.Is(err, orchestrator.ErrNotParticipant):
		return "You haven't joined this event, so there's nothing to check in to."
	case errors.Is(err, orchestrator.ErrAlreadyAttended):
		return "Your attendance is already on record."
	case errors.Is(err, orchestrator.ErrAbsent):
		return "You don't seem to be at the event location. Get closer and try again."
	case errors.Is(err, orchestrator.ErrNotCreator):
		return "Only the event creator can finalize it."
	case errors.Is(err, orchestrator.ErrEventNotFinalized):
		return "Memories are for settled events. Finalize it first."
	case errors.Is(err, orchestrator.ErrNoParticipants):
		return "Nobody joined that event, so there's nothing to remember."
	case errors.Is(err, ledger.ErrConfirmFailed):
		return "The transaction was rejected by the network. Nothing was charged; try again."
	default:
		return "Something went wrong on our side. Please try again in a moment."
	}
}

// Deadline formats a scheduled time for prompts.
func Deadline(t time.Time) string {
	return t.Format(dateLayout)
}
