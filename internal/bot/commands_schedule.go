package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"adzbot/internal/store"
	"adzbot/pkg/tgui"
)

func (r *Router) cmdAddSchedule(c tele.Context) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	if len(ents.Creatives) == 0 {
		return c.Send("Add a creative first (/addcreative).")
	}
	btns := make([]tele.Btn, 0, len(ents.Creatives))
	for _, cr := range ents.Creatives {
		label := fmt.Sprintf("#%d %s", cr.ID, snippet(cr.Body, 16))
		btns = append(btns, tgui.Btn(label, tgui.Data(cbScope, "scpick", strconv.Itoa(cr.ID))))
	}
	return c.Send("Schedule which creative?", tgui.Grid(2, btns))
}

func (r *Router) cbSchedulePickCreative(c tele.Context, payload string) error {
	id, err := strconv.Atoi(payload)
	if err != nil {
		return err
	}
	r.sess.start(chatID(c), stepScheduleTime, draft{creativeID: id})
	return c.Edit(fmt.Sprintf(
		"Scheduling creative #%d. Send the daily post time as 24h HH:MM (bot timezone: %s). /cancel to abort.",
		id, r.cfg().Timezone))
}

func (r *Router) cmdListSchedules(c tele.Context) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	if len(ents.Schedules) == 0 {
		return c.Send("No schedules yet. Add one with /addschedule.")
	}
	parts := make([]tgui.H, 0, len(ents.Schedules)+1)
	parts = append(parts, tgui.B("Daily schedules"))
	for _, sc := range ents.Schedules {
		line := fmt.Sprintf("#%d — creative #%d at %s, %s", sc.ID, sc.CreativeID, sc.TimeOfDay, ttlLabel(sc.AutoDeleteSeconds))
		if sc.LastFiredDate != "" {
			line += ", last fired " + sc.LastFiredDate
		}
		if _, ok := ents.CreativeByID(sc.CreativeID); !ok {
			line += " ⚠ creative missing"
		}
		parts = append(parts, tgui.Esc(line))
	}
	return replyHTML(c, tgui.JoinH("\n", parts...))
}

func (r *Router) cmdDelSchedule(c tele.Context) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	if len(ents.Schedules) == 0 {
		return c.Send("No schedules to delete.")
	}
	btns := make([]tele.Btn, 0, len(ents.Schedules))
	for _, sc := range ents.Schedules {
		label := fmt.Sprintf("#%d @ %s", sc.ID, sc.TimeOfDay)
		btns = append(btns, tgui.Btn(label, tgui.Data(cbScope, "delsc", strconv.Itoa(sc.ID))))
	}
	return c.Send("Pick a schedule to delete:", tgui.Grid(2, btns))
}

func (r *Router) cbDeleteSchedule(c tele.Context, payload string) error {
	id, err := strconv.Atoi(payload)
	if err != nil {
		return err
	}
	removed := false
	err = r.st.MutateEntities(r.ctx, func(e *store.Entities) error {
		removed = e.RemoveSchedule(id)
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return c.Edit("Schedule #" + payload + " was already gone.")
	}
	return c.Edit("Schedule #" + payload + " deleted.")
}
