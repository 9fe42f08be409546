package conversation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/meetstake/internal/adapters/chat"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Accepted date/time layouts for event scheduling.
var dateLayouts = []string{
	"2006-01-02 15:04",
	time.RFC3339,
}

var (
	errBadDate    = errors.New("I couldn't read that date. Use YYYY-MM-DD HH:MM.")
	errPastDate   = errors.New("That's in the past. Send a future date.")
	errBadAmount  = errors.New("I couldn't read that amount. Send a number like 0.01.")
	errZeroAmount = errors.New("The stake must be greater than zero.")
)

// parseFutureTime parses a scheduled date and rejects past instants.
func parseFutureTime(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		when, err := time.ParseInLocation(layout, text, now.Location())
		if err != nil {
			continue
		}
		if !when.After(now) {
			return time.Time{}, errPastDate
		}
		return when, nil
	}
	return time.Time{}, errBadDate
}

// parsePositiveAmount parses a stake amount; zero and negatives are rejected.
func parsePositiveAmount(text string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, errBadAmount
	}
	if !amount.IsPositive() {
		return decimal.Zero, errZeroAmount
	}
	return amount, nil
}

// parseLatLng reads a "lat, lng" coordinate pair from free text.
func parseLatLng(text string) (model.Location, bool) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return model.Location{}, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return model.Location{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return model.Location{}, false
	}
	return model.Location{Lat: lat, Lng: lng}, true
}

type confirmAnswer int

const (
	answerUnclear confirmAnswer = iota
	answerYes
	answerNo
)

// answer interprets an accept/cancel reply, from a tap or typed text.
func answer(t chat.Turn) confirmAnswer {
	var text string
	switch {
	case t.Selection != "":
		text = t.Selection
	default:
		text = t.Text
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "confirm", "yes", "y":
		return answerYes
	case "cancel", "no", "n":
		return answerNo
	default:
		return answerUnclear
	}
}

// eventOptions renders one tappable option per event. The leading "#id"
// keeps the payload unambiguous when names collide.
func eventOptions(events []model.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = fmt.Sprintf("#%d %s", e.ID, e.Name)
	}
	return out
}

func eventIDs(events []model.Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

// selectedEventID parses a "#id ..." option payload and checks it against
// the session's candidate set.
func selectedEventID(payload string, candidates []int64) (int64, bool) {
	if !strings.HasPrefix(payload, "#") {
		return 0, false
	}
	idText, _, _ := strings.Cut(strings.TrimPrefix(payload, "#"), " ")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return 0, false
	}
	for _, c := range candidates {
		if c == id {
			return id, true
		}
	}
	return 0, false
}

func activeOnly(events []model.Event) []model.Event {
	out := events[:0:0]
	for _, e := range events {
		if e.Active() {
			out = append(out, e)
		}
	}
	return out
}
