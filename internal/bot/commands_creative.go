package bot

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"adzbot/internal/store"
	"adzbot/pkg/tgui"
)

func (r *Router) cmdAddCreative(c tele.Context) error {
	body := strings.TrimSpace(payload(c))
	if body == "" {
		r.sess.start(chatID(c), stepCreativeBody, draft{})
		return c.Send("Send the creative text (HTML allowed). /cancel to abort.")
	}
	return r.saveCreative(c, body)
}

func (r *Router) saveCreative(c tele.Context, body string) error {
	var cr store.Creative
	err := r.st.MutateEntities(r.ctx, func(e *store.Entities) error {
		cr = e.AddCreative(body)
		return nil
	})
	if err != nil {
		return c.Send("Could not save: " + err.Error())
	}
	return replyHTML(c, tgui.Esc(fmt.Sprintf(
		"Creative #%d saved. Attach buttons with /setbuttons, send it with /broadcast %d.", cr.ID, cr.ID)))
}

func (r *Router) cmdListCreatives(c tele.Context) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	if len(ents.Creatives) == 0 {
		return c.Send("No creatives yet. Add one with /addcreative.")
	}
	parts := make([]tgui.H, 0, len(ents.Creatives)+1)
	parts = append(parts, tgui.B("Creatives"))
	for _, cr := range ents.Creatives {
		line := tgui.Code(fmt.Sprintf("#%d", cr.ID)) + " " + tgui.Esc(snippet(cr.Body, 48))
		if cr.ButtonSetID != 0 {
			line += tgui.I(fmt.Sprintf(" (buttons: set #%d)", cr.ButtonSetID))
		}
		parts = append(parts, line)
	}
	return replyHTML(c, tgui.JoinH("\n", parts...))
}

func (r *Router) cmdDelCreative(c tele.Context) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	if len(ents.Creatives) == 0 {
		return c.Send("No creatives to delete.")
	}
	btns := make([]tele.Btn, 0, len(ents.Creatives))
	for _, cr := range ents.Creatives {
		label := fmt.Sprintf("#%d %s", cr.ID, snippet(cr.Body, 16))
		btns = append(btns, tgui.Btn(label, tgui.Data(cbScope, "delcr", strconv.Itoa(cr.ID))))
	}
	return c.Send("Pick a creative to delete:", tgui.Grid(2, btns))
}

func (r *Router) cbDeleteCreative(c tele.Context, payload string) error {
	id, err := strconv.Atoi(payload)
	if err != nil {
		return err
	}
	removed := false
	err = r.st.MutateEntities(r.ctx, func(e *store.Entities) error {
		removed = e.RemoveCreative(id)
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return c.Edit("Creative #" + payload + " was already gone.")
	}
	// Schedules referencing it stay but turn inert; say so.
	return editHTML(c, tgui.Esc(fmt.Sprintf(
		"Creative #%d deleted. Schedules pointing at it will be skipped until you delete or repoint them.", id)))
}

// snippet trims a body for one-line listings (first line only).
func snippet(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	return string(rs[:max]) + "…"
}

// payload is the text after the command, e.g. "x y" for "/cmd x y".
func payload(c tele.Context) string {
	if m := c.Message(); m != nil {
		return m.Payload
	}
	return ""
}
