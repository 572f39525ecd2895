package security

import (
	"net/http"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/logging"
)

// Pipeline runs authentication then authorization in front of a handler.
type Pipeline struct {
	authn   *Authenticator
	logger  logging.Logger
	metrics *Metrics
}

func NewPipeline(authn *Authenticator, logger logging.Logger, metrics *Metrics) *Pipeline {
	return &Pipeline{authn: authn, logger: logger.With("module", "pipeline"), metrics: metrics}
}

// Guard wraps next with req. Denials map to 401 or 403 with a generic body;
// an unreachable identity store maps to 500. next sees the SecurityContext
// through FromContext(r.Context()).
func (p *Pipeline) Guard(req Requirement, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sc, err := p.authn.Authenticate(ctx, r.Header.Get(common.AuthorizationHeaderName))
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Debug(ctx, "request cancelled during authentication")
				return
			}
			p.logger.Error(ctx, "authentication failed", "error", err)
			WriteInternalError(w)
			return
		}

		// the caller may have gone away while the identity was loading
		if ctx.Err() != nil {
			p.logger.Debug(ctx, "request cancelled before dispatch")
			return
		}

		d := Authorize(sc, req)
		p.metrics.decision(d)

		if !d.Allowed {
			p.logger.Debug(ctx, "request denied", "requirement", req.String(), "reason", d.Reason.String(), "path", r.URL.Path)
			switch d.Reason {
			case DenyForbidden:
				WriteForbidden(w)
			default:
				WriteUnauthorized(w)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(WithContext(ctx, sc)))
	})
}
