package notice

import (
	"context"
	"log/slog"

	"github.com/gen2brain/beeep"
)

const appName = "LangSwap"

// maxDesktopMessage bounds the body of a desktop notification.
const maxDesktopMessage = 100

// notifyFunc matches beeep.Notify.
type notifyFunc func(title, message, icon string) error

// Desktop shows notices as desktop notifications on the device platform.
// Info notices are skipped unless ShowInfo is set; hints are not worth a
// popup.
type Desktop struct {
	ShowInfo bool

	notify notifyFunc
}

// NewDesktop returns a Desktop sink using the system notification service.
func NewDesktop(showInfo bool) *Desktop {
	return &Desktop{ShowInfo: showInfo, notify: func(title, message, icon string) error {
		return beeep.Notify(title, message, icon)
	}}
}

// Notify implements [Sink].
func (d *Desktop) Notify(ctx context.Context, n Notice) {
	if n.Kind == KindInfo && !d.ShowInfo {
		return
	}
	title := appName
	switch n.Kind {
	case KindError:
		title += ": error"
	case KindWarning:
		title += ": warning"
	}
	if err := d.notify(title, truncate(n.Message, maxDesktopMessage), ""); err != nil {
		slog.DebugContext(ctx, "desktop notification failed", "code", n.Code, "err", err)
	}
}
