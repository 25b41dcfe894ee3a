package panel

// Surface is a part of the panel that is only available in some sign-in states.
type Surface string

const (
	SurfaceSignIn       Surface = "sign-in"
	SurfaceTrelloLink   Surface = "trello-link"
	SurfaceBoards       Surface = "boards"
	SurfaceRegistration Surface = "registration"
	SurfaceWebhooks     Surface = "webhooks"
	SurfaceAccount      Surface = "account"
)

// Gate returns the surfaces available to a user: sign-in until authenticated, then the Trello link
// form until linked, then everything that needs Trello.
func Gate(authenticated, trelloLinked bool) []Surface {
	if !authenticated {
		return []Surface{SurfaceSignIn}
	}
	if !trelloLinked {
		return []Surface{SurfaceAccount, SurfaceTrelloLink}
	}
	return []Surface{SurfaceAccount, SurfaceTrelloLink, SurfaceBoards, SurfaceRegistration, SurfaceWebhooks}
}

// Allows reports whether surface s is available.
func Allows(authenticated, trelloLinked bool, s Surface) bool {
	for _, allowed := range Gate(authenticated, trelloLinked) {
		if allowed == s {
			return true
		}
	}
	return false
}
