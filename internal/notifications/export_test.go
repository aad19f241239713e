package notifications

// NewDesktopService exposes the desktop notifier with a substitute sender.
func NewDesktopService(notify func(title, message string) error) Service {
	return desktopService{notify: notify}
}
