package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"adzbot/internal/dispatch"
	"adzbot/pkg/logx"
	"adzbot/pkg/tgui"
)

func (r *Router) cmdBroadcast(c tele.Context) error {
	args := strings.Fields(payload(c))
	if len(args) == 0 {
		ents, err := r.st.Entities(r.ctx)
		if err != nil {
			return c.Send("Store unavailable: " + err.Error())
		}
		if len(ents.Creatives) == 0 {
			return c.Send("Nothing to broadcast. Add a creative first (/addcreative).")
		}
		btns := make([]tele.Btn, 0, len(ents.Creatives))
		for _, cr := range ents.Creatives {
			label := fmt.Sprintf("#%d %s", cr.ID, snippet(cr.Body, 16))
			btns = append(btns, tgui.Btn(label, tgui.Data(cbScope, "bcpick", strconv.Itoa(cr.ID))))
		}
		return c.Send("Broadcast which creative?", tgui.Grid(2, btns))
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		return c.Send("Usage: /broadcast [creative_id] [ttl_seconds]")
	}
	ttl := 0
	if len(args) > 1 {
		ttl, err = strconv.Atoi(args[1])
		if err != nil || ttl < 0 {
			return c.Send("ttl_seconds must be a whole number, 0 or more.")
		}
	}
	return r.sendPreview(c, id, ttl, false)
}

func (r *Router) cbBroadcastPickCreative(c tele.Context, payload string) error {
	id, err := strconv.Atoi(payload)
	if err != nil {
		return err
	}
	return r.sendPreview(c, id, 0, true)
}

// sendPreview shows the message as the channels will see it, then asks for
// confirmation. Nothing is sent to any channel before the confirm tap.
func (r *Router) sendPreview(c tele.Context, id, ttl int, edit bool) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	cr, ok := ents.CreativeByID(id)
	if !ok {
		msg := fmt.Sprintf("No creative with id %d. See /listcreatives.", id)
		if edit {
			return c.Edit(msg)
		}
		return c.Send(msg)
	}
	if len(ents.Channels) == 0 {
		return c.Send("No target channels configured. Add one with /addchannel first.")
	}

	text, kb := dispatch.Preview(r.cfg().Branding.PromoSuffix, ents, cr)
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if kb != nil {
		if err := c.Send(text, opts, kb); err != nil {
			return err
		}
	} else if err := c.Send(text, opts); err != nil {
		return err
	}

	prompt := fmt.Sprintf("Send creative #%d to %d channel(s)? Messages %s.",
		id, len(ents.Channels), ttlLabel(ttl))
	confirm := tgui.ConfirmInline(
		tgui.Btn("🚀 Send", tgui.Data(cbScope, "bcgo", fmt.Sprintf("%d:%d", id, ttl))),
		tgui.Btn("✖ Cancel", tgui.Data(cbScope, "cancel", "")),
	).Markup()
	return c.Send(prompt, confirm)
}

func (r *Router) cbBroadcastGo(c tele.Context, payload string) error {
	idStr, ttlStr, ok := strings.Cut(payload, ":")
	if !ok {
		return errors.New("malformed broadcast payload")
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return err
	}
	ttl, err := strconv.Atoi(ttlStr)
	if err != nil {
		return err
	}

	if err := c.Edit("Broadcasting…"); err != nil {
		r.log.Debug("broadcast progress edit failed", logx.Err(err))
	}

	rep, err := r.disp.Deliver(r.ctx, dispatch.Request{
		CreativeID: id,
		TTLSeconds: ttl,
		Kind:       dispatch.KindBroadcast,
	})
	if errors.Is(err, dispatch.ErrUnknownCreative) {
		return c.Edit(fmt.Sprintf("Creative #%d disappeared before sending. Nothing was sent.", id))
	}
	if err != nil {
		// Partial delivery still reports its numbers.
		return c.Edit(fmt.Sprintf("Broadcast interrupted: sent %d, failed %d (%v).", rep.Sent, rep.Failed, err))
	}
	return c.Edit(fmt.Sprintf("Broadcast done: sent %d, failed %d.", rep.Sent, rep.Failed))
}
