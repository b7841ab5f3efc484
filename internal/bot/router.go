package bot

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"adzbot/internal/config"
	"adzbot/internal/dispatch"
	"adzbot/internal/store"
	"adzbot/pkg/logx"
	"adzbot/pkg/tgui"
)

// cbScope prefixes all of this bot's callback data ("adz:<action>:<payload>").
const cbScope = "adz"

// Dispatcher is the delivery port the broadcast command talks to.
type Dispatcher interface {
	Deliver(ctx context.Context, req dispatch.Request) (dispatch.Report, error)
}

// Router registers the owner command surface on a telebot instance.
type Router struct {
	cfgm *config.Manager
	st   store.Store
	disp Dispatcher
	log  logx.Logger

	ctx     context.Context
	bot     *tele.Bot
	started time.Time
	sess    sessions
}

func New(cfgm *config.Manager, st store.Store, disp Dispatcher, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfgm:    cfgm,
		st:      st,
		disp:    disp,
		log:     log,
		started: time.Now(),
		sess:    newSessions(),
	}
}

func (r *Router) cfg() *config.Config { return r.cfgm.Get() }

// Register wires every handler. Call before the adapter starts polling; ctx
// bounds all store and delivery work triggered by handlers.
func (r *Router) Register(ctx context.Context, b *tele.Bot) {
	r.ctx = ctx
	r.bot = b

	b.Use(r.recovered, r.ownerOnly)

	b.Handle("/start", r.cmdStart)
	b.Handle("/help", r.cmdHelp)
	b.Handle("/status", r.cmdStatus)
	b.Handle("/stats", r.cmdStats)
	b.Handle("/cancel", r.cmdCancel)
	b.Handle("/done", r.cmdDone)

	b.Handle("/addcreative", r.cmdAddCreative)
	b.Handle("/listcreatives", r.cmdListCreatives)
	b.Handle("/delcreative", r.cmdDelCreative)

	b.Handle("/setbuttons", r.cmdSetButtons)
	b.Handle("/delbuttons", r.cmdDelButtons)

	b.Handle("/addchannel", r.cmdAddChannel)
	b.Handle("/removechannel", r.cmdRemoveChannel)
	b.Handle("/listchannels", r.cmdListChannels)

	b.Handle("/addschedule", r.cmdAddSchedule)
	b.Handle("/listschedules", r.cmdListSchedules)
	b.Handle("/delschedule", r.cmdDelSchedule)

	b.Handle("/broadcast", r.cmdBroadcast)

	b.Handle(tele.OnText, r.onText)
	b.Handle(tele.OnCallback, r.onCallback)
}

// ownerOnly drops every update that does not come from the configured owner.
// Silence (no "unauthorized" reply) keeps the bot invisible to strangers.
func (r *Router) ownerOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		if owner := r.cfg().Telegram.OwnerID; sender.ID != owner {
			r.log.Debug("ignoring non-owner update",
				logx.Int64("from_id", sender.ID),
				logx.Int64("chat_id", chatID(c)))
			if c.Callback() != nil {
				return c.Respond(&tele.CallbackResponse{Text: "forbidden"})
			}
			return nil
		}
		return next(c)
	}
}

func (r *Router) recovered(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("panic in command handler",
					logx.Int64("chat_id", chatID(c)),
					logx.Any("panic", rec),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		return next(c)
	}
}

func (r *Router) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	// telebot prefixes unique-based callbacks with \f; we route on raw data.
	scope, action, payload := tgui.SplitData(strings.TrimPrefix(cb.Data, "\f"))
	if scope != cbScope {
		return c.Respond(&tele.CallbackResponse{})
	}

	var err error
	switch action {
	case "cancel":
		r.sess.clear(chatID(c))
		err = c.Edit("Cancelled.")
	case "delcr":
		err = r.cbConfirmDelete(c, "creative", "delcr!", payload)
	case "delcr!":
		err = r.cbDeleteCreative(c, payload)
	case "delbt":
		err = r.cbConfirmDelete(c, "button set", "delbt!", payload)
	case "delbt!":
		err = r.cbDeleteButtonSet(c, payload)
	case "rmch":
		err = r.cbRemoveChannel(c, payload)
	case "delsc":
		err = r.cbConfirmDelete(c, "schedule", "delsc!", payload)
	case "delsc!":
		err = r.cbDeleteSchedule(c, payload)
	case "btpick":
		err = r.cbButtonsPickCreative(c, payload)
	case "scpick":
		err = r.cbSchedulePickCreative(c, payload)
	case "bcpick":
		err = r.cbBroadcastPickCreative(c, payload)
	case "bcgo":
		err = r.cbBroadcastGo(c, payload)
	default:
		r.log.Debug("unknown callback action", logx.String("action", action))
	}
	if err != nil {
		r.log.Warn("callback failed",
			logx.String("action", action),
			logx.String("payload", payload),
			logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "error"})
	}
	return c.Respond(&tele.CallbackResponse{})
}

// confirmKeyboard is the standard destructive-action prompt.
func confirmKeyboard(action, payload string) *tele.ReplyMarkup {
	return tgui.ConfirmInline(
		tgui.Btn("✅ Confirm", tgui.Data(cbScope, action, payload)),
		tgui.Btn("✖ Cancel", tgui.Data(cbScope, "cancel", "")),
	).Markup()
}

func (r *Router) cbConfirmDelete(c tele.Context, what, action, payload string) error {
	return c.Edit("Delete "+what+" #"+payload+"?", confirmKeyboard(action, payload))
}

// replyHTML answers in the current chat with HTML parse mode and previews off.
func replyHTML(c tele.Context, text tgui.H) error {
	return c.Send(string(text), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
}

func editHTML(c tele.Context, text tgui.H) error {
	return c.Edit(string(text), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
}

func chatID(c tele.Context) int64 {
	if ch := c.Chat(); ch != nil {
		return ch.ID
	}
	return 0
}
