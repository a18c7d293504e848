package graph

import (
	"github.com/graphql-go/graphql"

	"github.com/cppla/gqlbbs/services"
)

// GuardResult is the verdict of a Guard. A denied result carries the error
// returned to the caller in place of the field value.
type GuardResult struct {
	Allowed bool
	Err     error
}

// Guard decides whether a resolver may run.
type Guard func(p graphql.ResolveParams) GuardResult

func allow() GuardResult         { return GuardResult{Allowed: true} }
func deny(err error) GuardResult { return GuardResult{Err: err} }

// isAuth admits requests that carry a live session.
func isAuth(p graphql.ResolveParams) GuardResult {
	if services.RequestContextFrom(p.Context).Authenticated() {
		return allow()
	}
	return deny(services.ErrNotAuthenticated)
}

// guarded runs next only when every guard allows it.
func guarded(g Guard, next graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if res := g(p); !res.Allowed {
			return nil, res.Err
		}
		return next(p)
	}
}
