// Package panel is the control panel: it signs a user in, links Trello, registers webhooks across
// boards and keeps the grouped view of the user's webhook settings in step with the backend.
package panel

// Panel runs panel operations against a backend. Operations are sequential; a Panel is not meant to
// run two of them at once.
type Panel struct {
	backend     Backend
	callbackURL string
}

// New returns a Panel that registers webhooks delivering to callbackURL.
func New(backend Backend, callbackURL string) *Panel {
	return &Panel{backend: backend, callbackURL: callbackURL}
}
