package api

import (
	"errors"
	"net/http"

	"github.com/ManuGH/videocat/internal/auth"
	"github.com/ManuGH/videocat/internal/log"
)

// authMiddleware rejects requests without a valid principal. It fails
// closed when no authenticator is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.FromContext(r.Context()).With().Str(log.FieldComponent, "auth").Logger()

		if s.auth == nil {
			logger.Error().Str(log.FieldEvent, "auth.fail_closed").Msg("no authenticator configured, denying access")
			writeUnauthorized(w)
			return
		}

		p, err := s.auth.Authenticate(r)
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				s.audit.AuthMissing(r)
			} else {
				s.audit.AuthFailure(r, err.Error())
			}
			writeUnauthorized(w)
			return
		}

		ctx := auth.WithPrincipal(r.Context(), p)
		l := log.FromContext(ctx).With().Str(log.FieldUser, p.ID).Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
	})
}
