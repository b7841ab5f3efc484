// Package bot is the owner-facing Telegram command surface: CRUD commands for
// creatives, button sets, channels and schedules, plus /broadcast with an
// inline confirm step.
//
// Multi-step input (button rows, schedule details) runs through a small
// per-chat dialog session; the store only ever sees complete, validated
// records.
package bot
