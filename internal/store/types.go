package store

import (
	"strings"
	"time"
)

// Creative is a saved promotional message body plus an optional button set.
type Creative struct {
	ID          int    `json:"id"`
	Body        string `json:"body"`
	ButtonSetID int    `json:"button_set_id,omitempty"` // 0 = none
}

// Button is one URL button of an inline keyboard.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ButtonSet is a rows-of-buttons keyboard layout attachable to creatives.
type ButtonSet struct {
	ID   int        `json:"id"`
	Rows [][]Button `json:"rows"`
}

// Schedule is a daily recurring dispatch rule.
//
// LastFiredDate is a calendar date in "2006-01-02" form, local to the
// configured timezone; empty means the schedule has never fired.
type Schedule struct {
	ID                int    `json:"id"`
	CreativeID        int    `json:"creative_id"`
	TimeOfDay         string `json:"time_of_day"` // "HH:MM"
	AutoDeleteSeconds int    `json:"auto_delete_seconds"`
	LastFiredDate     string `json:"last_fired_date,omitempty"`
}

// Entities is the primary durable record.
type Entities struct {
	Creatives  []Creative  `json:"creatives"`
	ButtonSets []ButtonSet `json:"button_sets"`
	Channels   []string    `json:"channels"`
	Schedules  []Schedule  `json:"schedules"`

	NextCreativeID  int `json:"next_creative_id"`
	NextButtonSetID int `json:"next_button_set_id"`
	NextScheduleID  int `json:"next_schedule_id"`
}

// PendingDeletion records a sent message awaiting time-based removal.
type PendingDeletion struct {
	ChatID     int64     `json:"chat_id"`
	MessageID  int       `json:"message_id"`
	SentAt     time.Time `json:"sent_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// DeletionKey identifies a pending deletion record.
type DeletionKey struct {
	ChatID    int64
	MessageID int
}

func (p PendingDeletion) Key() DeletionKey {
	return DeletionKey{ChatID: p.ChatID, MessageID: p.MessageID}
}

// Due reports whether the record's TTL has elapsed at now.
func (p PendingDeletion) Due(now time.Time) bool {
	return now.Sub(p.SentAt) >= time.Duration(p.TTLSeconds)*time.Second
}

// Stats are the monotonically increasing delivery counters.
// Values are also used as deltas in Store.AddStats.
type Stats struct {
	Broadcasts uint64 `json:"broadcasts"`
	Autoposts  uint64 `json:"autoposts"`
	Sent       uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
}

func (s *Stats) add(d Stats) {
	s.Broadcasts += d.Broadcasts
	s.Autoposts += d.Autoposts
	s.Sent += d.Sent
	s.Failed += d.Failed
}

// ---- Entities accessors/mutators (pure data, no policy) ----

func (e *Entities) CreativeByID(id int) (Creative, bool) {
	for _, c := range e.Creatives {
		if c.ID == id {
			return c, true
		}
	}
	return Creative{}, false
}

func (e *Entities) ButtonSetByID(id int) (ButtonSet, bool) {
	for _, b := range e.ButtonSets {
		if b.ID == id {
			return b, true
		}
	}
	return ButtonSet{}, false
}

func (e *Entities) ScheduleByID(id int) (Schedule, bool) {
	for _, s := range e.Schedules {
		if s.ID == id {
			return s, true
		}
	}
	return Schedule{}, false
}

// AddCreative assigns the next monotonic id and appends the creative.
func (e *Entities) AddCreative(body string) Creative {
	if e.NextCreativeID <= 0 {
		e.NextCreativeID = 1
	}
	c := Creative{ID: e.NextCreativeID, Body: body}
	e.NextCreativeID++
	e.Creatives = append(e.Creatives, c)
	return c
}

func (e *Entities) UpdateCreative(c Creative) bool {
	for i := range e.Creatives {
		if e.Creatives[i].ID == c.ID {
			e.Creatives[i] = c
			return true
		}
	}
	return false
}

// RemoveCreative deletes the creative. Schedules referencing it are left in
// place and become inert (the scheduler skips unresolvable creatives).
func (e *Entities) RemoveCreative(id int) bool {
	for i := range e.Creatives {
		if e.Creatives[i].ID == id {
			e.Creatives = append(e.Creatives[:i], e.Creatives[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Entities) AddButtonSet(rows [][]Button) ButtonSet {
	if e.NextButtonSetID <= 0 {
		e.NextButtonSetID = 1
	}
	b := ButtonSet{ID: e.NextButtonSetID, Rows: rows}
	e.NextButtonSetID++
	e.ButtonSets = append(e.ButtonSets, b)
	return b
}

// RemoveButtonSet deletes the set and detaches it from any creative.
func (e *Entities) RemoveButtonSet(id int) bool {
	removed := false
	for i := range e.ButtonSets {
		if e.ButtonSets[i].ID == id {
			e.ButtonSets = append(e.ButtonSets[:i], e.ButtonSets[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		for i := range e.Creatives {
			if e.Creatives[i].ButtonSetID == id {
				e.Creatives[i].ButtonSetID = 0
			}
		}
	}
	return removed
}

// AddChannel appends the channel if not already present. Insertion order is
// preserved for display.
func (e *Entities) AddChannel(ch string) bool {
	ch = strings.TrimSpace(ch)
	if ch == "" {
		return false
	}
	for _, have := range e.Channels {
		if have == ch {
			return false
		}
	}
	e.Channels = append(e.Channels, ch)
	return true
}

func (e *Entities) RemoveChannel(ch string) bool {
	ch = strings.TrimSpace(ch)
	for i, have := range e.Channels {
		if have == ch {
			e.Channels = append(e.Channels[:i], e.Channels[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Entities) AddSchedule(creativeID int, timeOfDay string, autoDeleteSeconds int) Schedule {
	if e.NextScheduleID <= 0 {
		e.NextScheduleID = 1
	}
	s := Schedule{
		ID:                e.NextScheduleID,
		CreativeID:        creativeID,
		TimeOfDay:         timeOfDay,
		AutoDeleteSeconds: autoDeleteSeconds,
	}
	e.NextScheduleID++
	e.Schedules = append(e.Schedules, s)
	return s
}

func (e *Entities) RemoveSchedule(id int) bool {
	for i := range e.Schedules {
		if e.Schedules[i].ID == id {
			e.Schedules = append(e.Schedules[:i], e.Schedules[i+1:]...)
			return true
		}
	}
	return false
}

// StampFired records that the schedule fired on the given local calendar date.
func (e *Entities) StampFired(scheduleID int, date string) bool {
	for i := range e.Schedules {
		if e.Schedules[i].ID == scheduleID {
			e.Schedules[i].LastFiredDate = date
			return true
		}
	}
	return false
}
