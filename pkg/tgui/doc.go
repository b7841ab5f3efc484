// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (scope:action:payload)
//   - HTML escaping primitives for ParseMode="HTML"
//
// Everything here is presentation only; no bot state lives in this package.
package tgui
