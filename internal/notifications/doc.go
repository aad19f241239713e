// Package notifications announces rip milestones.
//
// An ntfy topic (from [notifications] ntfy_topic) receives plain-text posts
// with title, tag and priority headers; the desktop notifier pops up a native
// notification through beeep. With neither configured the service is a
// no-op. Callers only see the Service interface and the Event constants.
package notifications
