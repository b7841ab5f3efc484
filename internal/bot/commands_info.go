package bot

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"adzbot/pkg/logx"
	"adzbot/pkg/tgui"
)

const helpText = `<b>adzbot — promo broadcaster</b>

<b>Creatives</b>
/addcreative [text] — save a promo message
/listcreatives
/delcreative

<b>Buttons</b>
/setbuttons — attach an inline keyboard to a creative
/delbuttons

<b>Channels</b>
/addchannel @handle|id
/removechannel [@handle|id]
/listchannels

<b>Schedules</b>
/addschedule — daily autopost (time + auto-delete)
/listschedules
/delschedule

<b>Sending</b>
/broadcast [creative_id] [ttl_seconds]

/status · /stats · /cancel`

func (r *Router) cmdStart(c tele.Context) error {
	return r.cmdHelp(c)
}

func (r *Router) cmdHelp(c tele.Context) error {
	return replyHTML(c, tgui.Raw(helpText))
}

func (r *Router) cmdStatus(c tele.Context) error {
	ents, err := r.st.Entities(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	pending, err := r.st.PendingDeletions(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}

	cfg := r.cfg()
	loc, locErr := cfg.Location()
	if locErr != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)

	text := tgui.JoinH("\n",
		tgui.B("Status"),
		tgui.Esc(fmt.Sprintf("Creatives: %d · Button sets: %d", len(ents.Creatives), len(ents.ButtonSets))),
		tgui.Esc(fmt.Sprintf("Channels: %d · Schedules: %d", len(ents.Channels), len(ents.Schedules))),
		tgui.Esc(fmt.Sprintf("Pending deletions: %d", len(pending))),
		tgui.Esc(fmt.Sprintf("Local time: %s (%s)", now.Format("15:04:05"), cfg.Timezone)),
		tgui.Esc("Uptime: "+time.Since(r.started).Round(time.Second).String()),
	)
	return replyHTML(c, text)
}

func (r *Router) cmdStats(c tele.Context) error {
	stats, err := r.st.Stats(r.ctx)
	if err != nil {
		return c.Send("Store unavailable: " + err.Error())
	}
	text := tgui.JoinH("\n",
		tgui.B("Lifetime counters"),
		tgui.Esc(fmt.Sprintf("Broadcasts: %d", stats.Broadcasts)),
		tgui.Esc(fmt.Sprintf("Autoposts: %d", stats.Autoposts)),
		tgui.Esc(fmt.Sprintf("Messages sent: %d", stats.Sent)),
		tgui.Esc(fmt.Sprintf("Messages failed: %d", stats.Failed)),
	)
	return replyHTML(c, text)
}

// SendFirstRunWelcome greets the owner once, on the very first boot.
func (r *Router) SendFirstRunWelcome(ctx context.Context) {
	first, err := r.st.FirstRun(ctx)
	if err != nil {
		r.log.Warn("first-run check failed", logx.Err(err))
		return
	}
	if !first || r.bot == nil {
		return
	}
	owner := r.cfg().Telegram.OwnerID
	_, err = r.bot.Send(tele.ChatID(owner),
		"Welcome! I'm set up and ready.\n\n"+helpText,
		&tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
	if err != nil {
		r.log.Warn("welcome message failed", logx.Int64("owner_id", owner), logx.Err(err))
		return
	}
	r.log.Info("first-run welcome sent", logx.Int64("owner_id", owner))
}
