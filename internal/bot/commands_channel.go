package bot

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"adzbot/internal/store"
	"adzbot/pkg/tgui"
)

func (r *Router) cmdAddChannel(c tele.Context) error {
	ch, err := parseChannelArg(payload(c))
	if err != nil {
		return c.Send("Usage: /addchannel @handle or /addchannel -1001234567890\n(" + err.Error() + ")")
	}
	added := false
	err = r.st.MutateEntities(r.ctx, func(e *store.Entities) error {
		added = e.AddChannel(ch)
		return nil
	})
	if err != nil {
		return c.Send("Could not save: " + err.Error())
	}
	if !added {
		return c.Send(ch + " is already on the list.")
	}
	return c.Send("Added " + ch + ". Make sure I'm an admin there so I can post and delete.")
}

func (r *Router) cmdRemoveChannel(c tele.Context) error {
	// With an argument, remove directly; bare, show a picker.
	if arg := strings.TrimSpace(payload(c)); arg != "" {
		return r.removeChannel(c, arg, false)
	}
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	if len(ents.Channels) == 0 {
		return c.Send("No channels configured.")
	}
	btns := make([]tele.Btn, 0, len(ents.Channels))
	for _, ch := range ents.Channels {
		btns = append(btns, tgui.Btn(ch, tgui.Data(cbScope, "rmch", ch)))
	}
	return c.Send("Pick a channel to remove:", tgui.Grid(1, btns))
}

func (r *Router) cbRemoveChannel(c tele.Context, payload string) error {
	return r.removeChannel(c, payload, true)
}

func (r *Router) removeChannel(c tele.Context, ch string, edit bool) error {
	removed := false
	err := r.st.MutateEntities(r.ctx, func(e *store.Entities) error {
		removed = e.RemoveChannel(ch)
		return nil
	})
	if err != nil {
		return c.Send("Could not save: " + err.Error())
	}
	msg := "Removed " + ch + "."
	if !removed {
		msg = ch + " was not on the list."
	}
	if edit {
		return c.Edit(msg)
	}
	return c.Send(msg)
}

func (r *Router) cmdListChannels(c tele.Context) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	if len(ents.Channels) == 0 {
		return c.Send("No channels yet. Add one with /addchannel @handle.")
	}
	parts := make([]tgui.H, 0, len(ents.Channels)+1)
	parts = append(parts, tgui.B("Target channels"))
	for _, ch := range ents.Channels {
		parts = append(parts, tgui.Code(ch))
	}
	return replyHTML(c, tgui.JoinH("\n", parts...))
}
