//go:build linux

package main

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// sd_notify is best effort: outside systemd both calls are no-ops.

func notifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

func notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
