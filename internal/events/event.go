// Package events defines the rating-event schema carried over Kafka, the
// publisher the API uses to enqueue events, and the consumer handler that
// applies them to the engine.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
)

// Type names what an event does to the engine.
type Type string

const (
	Like       Type = "like"
	Dislike    Type = "dislike"
	Unlike     Type = "unlike"
	Undislike  Type = "undislike"
	Pass       Type = "pass"
	Activate   Type = "activate"
	Deactivate Type = "deactivate"
	ViewDebt   Type = "view_debt"
)

const maxIDLength = 256

// ID is a user or item identifier. Producers send either JSON strings or
// numbers; both normalize to the same string so 42 and "42" name one user.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	canon, err := canonicalNumber(n.String())
	if err != nil {
		return fmt.Errorf("id %s: %w", n, err)
	}
	*id = ID(canon)
	return nil
}

// canonicalNumber renders a JSON number in one form per value: 42, 42.0 and
// 4.2e1 all become "42". Integer literals too large for int64 keep their
// digits rather than being rounded through float64.
func canonicalNumber(text string) (string, error) {
	i, err := strconv.ParseInt(text, 10, 64)
	if err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return text, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return "", err
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// Event is one rating-stream message.
type Event struct {
	Type   Type `json:"type"`
	UserID ID   `json:"user_id,omitempty"`
	ItemID ID   `json:"item_id,omitempty"`
	// Users lists the recipients of a view_debt event.
	Users []ID `json:"users,omitempty"`
	// Timestamp is the item's activation time. With Likes and Dislikes on a
	// like or dislike it rescores the item's hotness.
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Likes     *int64     `json:"likes,omitempty"`
	Dislikes  *int64     `json:"dislikes,omitempty"`
	// UpdateRecs overrides the engine's configured post-rating update.
	UpdateRecs *bool `json:"update_recs,omitempty"`
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrInvalidInput }

// Validate checks that the event carries the identifiers its type needs.
// The returned error wraps ErrInvalidInput.
func (ev *Event) Validate() error {
	errs := make(map[string]string)
	needUser, needItem := false, false
	switch ev.Type {
	case Like, Dislike, Unlike, Undislike, Pass:
		needUser, needItem = true, true
	case Activate, Deactivate:
		needItem = true
	case ViewDebt:
		if len(ev.Users) == 0 {
			errs["users"] = "at least one user is required"
		}
		for _, u := range ev.Users {
			if u == "" || len(u) > maxIDLength {
				errs["users"] = "user ids must be non-empty and at most 256 characters"
				break
			}
			if strings.Contains(string(u), ":") {
				errs["users"] = "user ids must not contain ':'"
				break
			}
		}
	case "":
		errs["type"] = "type is required"
	default:
		errs["type"] = fmt.Sprintf("unknown event type %q", ev.Type)
	}
	checkID(errs, "user_id", ev.UserID, needUser)
	checkID(errs, "item_id", ev.ItemID, needItem)

	if ev.Likes != nil && *ev.Likes < 0 {
		errs["likes"] = "likes must not be negative"
	}
	if ev.Dislikes != nil && *ev.Dislikes < 0 {
		errs["dislikes"] = "dislikes must not be negative"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkID(errs map[string]string, field string, id ID, required bool) {
	switch {
	case required && id == "":
		errs[field] = field + " is required"
	case len(id) > maxIDLength:
		errs[field] = fmt.Sprintf("%s must be at most %d characters", field, maxIDLength)
	case strings.Contains(string(id), ":"):
		errs[field] = field + " must not contain ':'"
	}
}

// Key is the Kafka partition key. Rating events key on the user so each
// user's events apply in order; item lifecycle events key on the item.
func (ev *Event) Key() string {
	switch ev.Type {
	case Activate, Deactivate:
		return "item:" + string(ev.ItemID)
	case ViewDebt:
		return "view_debt"
	default:
		return "user:" + string(ev.UserID)
	}
}

// hotness reports whether the event carries a full hotness refresh.
func (ev *Event) hotness() bool {
	return ev.Likes != nil && ev.Dislikes != nil && ev.Timestamp != nil
}
