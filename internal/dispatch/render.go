package dispatch

import (
	tele "gopkg.in/telebot.v4"

	"adzbot/internal/store"
	"adzbot/pkg/tgui"
)

// Preview renders a creative exactly as Deliver would send it: suffixed body
// plus the inline keyboard, or nil when no button set is attached.
func Preview(suffix string, ents store.Entities, c store.Creative) (string, *tele.ReplyMarkup) {
	var kb *tele.ReplyMarkup
	if c.ButtonSetID != 0 {
		if bs, ok := ents.ButtonSetByID(c.ButtonSetID); ok {
			kb = renderKeyboard(bs)
		}
	}
	return renderBody(c.Body, suffix), kb
}

// renderBody joins the creative body and the promotional suffix. The body is
// owner-authored and sent as-is (HTML parse mode).
func renderBody(body, suffix string) string {
	if suffix == "" {
		return body
	}
	return body + "\n\n" + suffix
}

// renderKeyboard builds the inline keyboard for a button set, preserving row
// and column order.
func renderKeyboard(bs store.ButtonSet) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, row := range bs.Rows {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgui.URLBtn(b.Label, b.URL))
		}
		if len(btns) > 0 {
			kb.Row(btns...)
		}
	}
	return kb.Markup()
}
