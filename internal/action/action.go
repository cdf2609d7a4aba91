// Package action encodes workflow actions into the opaque tokens carried by
// interactive controls, and decodes them back on activation.
//
// The token is the only state a control can carry between render and
// activation, so Decode is the single choke point translating it back into
// typed workflow parameters. Raw tokens never cross into workflow logic.
package action

import (
	"fmt"
	"strings"

	"github.com/nxtoffice/checkinbot/internal/models"
)

// Kind identifies one of the fixed workflow actions a control can trigger.
type Kind string

const (
	// KindOfficeCheckin starts the check-in flow for the activating user.
	KindOfficeCheckin Kind = "office-checkin"
	// KindApproveAll approves every pending visit in insertion order.
	KindApproveAll Kind = "approve-all"
	// KindApproveSelect lists pending visits with per-visit controls.
	KindApproveSelect Kind = "approve-select"
	// KindApproveOne approves the pending visit of the carried user ID.
	KindApproveOne Kind = "approve-one"
	// KindDismissOne dismisses the pending visit of the carried user ID.
	KindDismissOne Kind = "dismiss-one"
	// KindSchedulePick selects one candidate from a multi-match schedule lookup.
	KindSchedulePick Kind = "schedule-pick"
	// KindScheduleConfirm confirms a proposed visit for {user ID, date}.
	KindScheduleConfirm Kind = "schedule-confirm"
	// KindScheduleDecline declines a proposed visit for {user ID, date}.
	KindScheduleDecline Kind = "schedule-decline"
)

// Separator joins the kind and fields inside a token. Field values must not
// contain it; Encode rejects those.
const Separator = "|"

// arity maps each kind to the exact number of fields its token carries.
var arity = map[Kind]int{
	KindOfficeCheckin:   0,
	KindApproveAll:      0,
	KindApproveSelect:   0,
	KindApproveOne:      1,
	KindDismissOne:      1,
	KindSchedulePick:    1,
	KindScheduleConfirm: 2,
	KindScheduleDecline: 2,
}

// Action is a decoded control activation: a kind plus its typed fields.
type Action struct {
	Kind   Kind
	Fields []string
}

// UserID returns the user ID field for kinds that carry one
// (approve-one, dismiss-one, schedule-pick, schedule-confirm, schedule-decline).
func (a Action) UserID() string {
	if len(a.Fields) > 0 {
		return a.Fields[0]
	}
	return ""
}

// Date returns the date field for the schedule-confirm and schedule-decline kinds.
func (a Action) Date() string {
	if len(a.Fields) > 1 {
		return a.Fields[1]
	}
	return ""
}

// Encode packs a kind and its fields into a token suitable for a control ID.
func Encode(kind Kind, fields ...string) (string, error) {
	want, ok := arity[kind]
	if !ok {
		return "", fmt.Errorf("encode: unknown action kind %q", kind)
	}
	if len(fields) != want {
		return "", fmt.Errorf("encode: kind %s requires %d fields, got %d", kind, want, len(fields))
	}
	for i, f := range fields {
		if f == "" {
			return "", fmt.Errorf("encode: kind %s has empty field %d", kind, i)
		}
		if strings.Contains(f, Separator) {
			return "", fmt.Errorf("encode: field %q contains separator %q", f, Separator)
		}
	}
	if len(fields) == 0 {
		return string(kind), nil
	}
	return string(kind) + Separator + strings.Join(fields, Separator), nil
}

// MustEncode is Encode for tokens built entirely from trusted literals and
// transport-issued IDs. It panics on error, which indicates a programming bug.
func MustEncode(kind Kind, fields ...string) string {
	token, err := Encode(kind, fields...)
	if err != nil {
		panic(err)
	}
	return token
}

// Decode unpacks a token back into a typed Action. It fails with
// models.ErrMalformedAction on an unknown kind or a field-count mismatch.
func Decode(token string) (Action, error) {
	parts := strings.Split(token, Separator)
	kind := Kind(parts[0])
	want, ok := arity[kind]
	if !ok {
		return Action{}, fmt.Errorf("%w: unknown kind in token %q", models.ErrMalformedAction, token)
	}
	fields := parts[1:]
	if len(fields) != want {
		return Action{}, fmt.Errorf("%w: kind %s expects %d fields, token carries %d", models.ErrMalformedAction, kind, want, len(fields))
	}
	for i, f := range fields {
		if f == "" {
			return Action{}, fmt.Errorf("%w: kind %s has empty field %d", models.ErrMalformedAction, kind, i)
		}
	}
	return Action{Kind: kind, Fields: fields}, nil
}
