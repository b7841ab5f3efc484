package bot

import (
	"fmt"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"

	"adzbot/internal/store"
	"adzbot/pkg/tgui"
)

// step is the dialog state of one chat. The store only ever receives
// complete, validated records; partial input lives in the draft.
type step int

const (
	stepNone step = iota
	stepCreativeBody
	stepButtonRows
	stepScheduleTime
	stepScheduleTTL
)

type draft struct {
	creativeID int
	rows       [][]store.Button
	timeOfDay  string
}

type session struct {
	step  step
	draft draft
}

type sessions struct {
	mu sync.Mutex
	m  map[int64]*session
}

func newSessions() sessions {
	return sessions{m: map[int64]*session{}}
}

func (s *sessions) get(chat int64) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ses, ok := s.m[chat]
	return ses, ok
}

func (s *sessions) start(chat int64, st step, d draft) {
	s.mu.Lock()
	s.m[chat] = &session{step: st, draft: d}
	s.mu.Unlock()
}

func (s *sessions) clear(chat int64) {
	s.mu.Lock()
	delete(s.m, chat)
	s.mu.Unlock()
}

// onText feeds plain messages into the active dialog, if any.
func (r *Router) onText(c tele.Context) error {
	ses, ok := r.sess.get(chatID(c))
	if !ok {
		return nil
	}
	switch ses.step {
	case stepCreativeBody:
		return r.stepCreativeBody(c)
	case stepButtonRows:
		return r.stepButtonRow(c, ses)
	case stepScheduleTime:
		return r.stepScheduleTime(c, ses)
	case stepScheduleTTL:
		return r.stepScheduleTTL(c, ses)
	}
	return nil
}

func (r *Router) cmdCancel(c tele.Context) error {
	if _, ok := r.sess.get(chatID(c)); !ok {
		return c.Send("Nothing to cancel.")
	}
	r.sess.clear(chatID(c))
	return c.Send("Cancelled.")
}

// /done only means something inside the button-rows dialog.
func (r *Router) cmdDone(c tele.Context) error {
	ses, ok := r.sess.get(chatID(c))
	if !ok || ses.step != stepButtonRows {
		return c.Send("Nothing in progress. See /help.")
	}
	return r.finishButtonSet(c, ses)
}

func (r *Router) stepCreativeBody(c tele.Context) error {
	body := c.Text()
	if body == "" {
		return c.Send("The creative text cannot be empty. Try again or /cancel.")
	}
	r.sess.clear(chatID(c))
	return r.saveCreative(c, body)
}

func (r *Router) stepButtonRow(c tele.Context, ses *session) error {
	cfg := r.cfg()
	row, err := parseButtonRow(c.Text(), cfg.MaxButtonsPerRow())
	if err != nil {
		return c.Send("That row didn't parse: " + err.Error() + "\nFormat: one button per line, `Label | https://url`. /done to finish, /cancel to abort.")
	}
	if len(ses.draft.rows) >= cfg.MaxButtonRows() {
		return c.Send(fmt.Sprintf("Row limit reached (%d). Send /done to save or /cancel to abort.", cfg.MaxButtonRows()))
	}
	ses.draft.rows = append(ses.draft.rows, row)
	return c.Send(fmt.Sprintf("Row %d saved (%d button(s)). Send the next row, or /done.", len(ses.draft.rows), len(row)))
}

func (r *Router) finishButtonSet(c tele.Context, ses *session) error {
	if len(ses.draft.rows) == 0 {
		return c.Send("No rows collected yet. Send at least one `Label | URL` row, or /cancel.")
	}
	creativeID := ses.draft.creativeID
	rows := ses.draft.rows

	var setID int
	err := r.st.MutateEntities(r.ctx, func(e *store.Entities) error {
		cr, ok := e.CreativeByID(creativeID)
		if !ok {
			return fmt.Errorf("creative #%d no longer exists", creativeID)
		}
		bs := e.AddButtonSet(rows)
		setID = bs.ID
		cr.ButtonSetID = bs.ID
		e.UpdateCreative(cr)
		return nil
	})
	r.sess.clear(chatID(c))
	if err != nil {
		return c.Send("Could not save buttons: " + err.Error())
	}
	return replyHTML(c, tgui.JoinH(" ",
		tgui.Esc(fmt.Sprintf("Button set #%d (%d rows) attached to creative", setID, len(rows))),
		tgui.B(fmt.Sprintf("#%d", creativeID))+tgui.Esc("."),
	))
}

func (r *Router) stepScheduleTime(c tele.Context, ses *session) error {
	hhmm, err := ParseTimeOfDay(c.Text())
	if err != nil {
		return c.Send("That doesn't look like a time. Use 24h HH:MM, e.g. 09:30 or 22:00. /cancel to abort.")
	}
	ses.draft.timeOfDay = hhmm
	ses.step = stepScheduleTTL
	return c.Send("Fire daily at " + hhmm + ". Now send the auto-delete time in seconds (0 = keep forever).")
}

func (r *Router) stepScheduleTTL(c tele.Context, ses *session) error {
	ttl, err := strconv.Atoi(c.Text())
	if err != nil || ttl < 0 {
		return c.Send("Send a whole number of seconds, 0 or more. /cancel to abort.")
	}
	d := ses.draft
	r.sess.clear(chatID(c))

	var sc store.Schedule
	err = r.st.MutateEntities(r.ctx, func(e *store.Entities) error {
		if _, ok := e.CreativeByID(d.creativeID); !ok {
			return fmt.Errorf("creative #%d no longer exists", d.creativeID)
		}
		sc = e.AddSchedule(d.creativeID, d.timeOfDay, ttl)
		return nil
	})
	if err != nil {
		return c.Send("Could not save schedule: " + err.Error())
	}
	return replyHTML(c, tgui.Esc(fmt.Sprintf(
		"Schedule #%d saved: creative #%d daily at %s, %s.",
		sc.ID, sc.CreativeID, sc.TimeOfDay, ttlLabel(sc.AutoDeleteSeconds))))
}

func ttlLabel(seconds int) string {
	if seconds <= 0 {
		return "kept forever"
	}
	return fmt.Sprintf("auto-delete after %ds", seconds)
}
