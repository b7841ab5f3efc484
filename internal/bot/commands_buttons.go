package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"adzbot/internal/store"
	"adzbot/pkg/tgui"
)

func (r *Router) cmdSetButtons(c tele.Context) error {
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
		btns = append(btns, tgui.Btn(label, tgui.Data(cbScope, "btpick", strconv.Itoa(cr.ID))))
	}
	return c.Send("Attach buttons to which creative?", tgui.Grid(2, btns))
}

func (r *Router) cbButtonsPickCreative(c tele.Context, payload string) error {
	id, err := strconv.Atoi(payload)
	if err != nil {
		return err
	}
	cfg := r.cfg()
	r.sess.start(chatID(c), stepButtonRows, draft{creativeID: id})
	return c.Edit(fmt.Sprintf(
		"Building keyboard for creative #%d.\n"+
			"Send one message per row; each line in it is one button:\n"+
			"Label | https://example.com\n"+
			"Limits: %d buttons per row, %d rows. /done to save, /cancel to abort.",
		id, cfg.MaxButtonsPerRow(), cfg.MaxButtonRows()))
}

func (r *Router) cmdDelButtons(c tele.Context) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	if len(ents.ButtonSets) == 0 {
		return c.Send("No button sets yet.")
	}
	btns := make([]tele.Btn, 0, len(ents.ButtonSets))
	for _, bs := range ents.ButtonSets {
		label := fmt.Sprintf("set #%d (%d rows)", bs.ID, len(bs.Rows))
		btns = append(btns, tgui.Btn(label, tgui.Data(cbScope, "delbt", strconv.Itoa(bs.ID))))
	}
	return c.Send("Pick a button set to delete:", tgui.Grid(2, btns))
}

func (r *Router) cbDeleteButtonSet(c tele.Context, payload string) error {
	id, err := strconv.Atoi(payload)
	if err != nil {
		return err
	}
	removed := false
	err = r.st.MutateEntities(r.ctx, func(e *store.Entities) error {
		removed = e.RemoveButtonSet(id)
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return c.Edit("Button set #" + payload + " was already gone.")
	}
	return c.Edit("Button set #" + payload + " deleted; creatives using it were detached.")
}
