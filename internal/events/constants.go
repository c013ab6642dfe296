package events

// Event types sent by the tracking script.
const (
	EventTypePageview = "pageview"
	EventTypeExit     = "exit"
	EventTypeClick    = "click"
)

// Event categories and actions the tracking script attaches to built-in events.
const (
	CategoryNavigation  = "navigation"
	CategoryInteraction = "interaction"
	ActionExit          = "exit"
)
