package identity

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/canvas-presence/internal/domain"
)

// SessionName is the signed cookie shared with the gin sessions middleware.
const SessionName = "presence_session"

const (
	keyUserID = "user_id"
	keyName   = "name"
	keyImage  = "image"
)

// CookieResolver reads identity from the signed gin-contrib session cookie.
// Used in development where no upstream session service exists.
type CookieResolver struct {
	store sessions.Store
}

func NewCookieResolver(store sessions.Store) *CookieResolver {
	return &CookieResolver{store: store}
}

func (r *CookieResolver) Resolve(req *http.Request) (domain.User, bool) {
	sess, err := r.store.Get(req, SessionName)
	if err != nil || sess.IsNew {
		if err != nil {
			log.Debug().Err(err).Str("module", "identity.cookie").Msg("bad session cookie")
		}
		return domain.User{}, false
	}
	u, err := domain.NewUser(str(sess.Values[keyUserID]), str(sess.Values[keyName]), str(sess.Values[keyImage]))
	if err != nil {
		return domain.User{}, false
	}
	return u, true
}

// SaveUser stores u in the request's session; the caller's handler chain
// must include the sessions middleware for SessionName.
func SaveUser(s sessions.Session, u domain.User) error {
	s.Set(keyUserID, string(u.ID))
	s.Set(keyName, u.Name)
	s.Set(keyImage, u.Image)
	if err := s.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
