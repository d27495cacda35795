package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/clothmarket/api/internal/platform/auth"
	"github.com/clothmarket/api/internal/platform/httpx"
	"github.com/clothmarket/api/internal/services"
)

type actorKey struct{}

// WithActor stores the resolved marketplace actor on ctx.
func WithActor(ctx context.Context, actor services.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor resolved by ActorResolver.
func ActorFromContext(ctx context.Context) (services.Actor, bool) {
	if ctx == nil {
		return services.Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(services.Actor)
	return actor, ok
}

// AccountLookup loads the marketplace account of a Firebase UID.
type AccountLookup interface {
	Me(ctx context.Context, firebaseUID string) (services.Account, error)
}

// ActorResolver turns a verified Firebase identity into a marketplace Actor. Platform admins come
// from the token's role claim; customers and sellers come from their registered account.
type ActorResolver struct {
	authn    *auth.Authenticator
	accounts AccountLookup
}

func NewActorResolver(authn *auth.Authenticator, accounts AccountLookup) *ActorResolver {
	return &ActorResolver{authn: authn, accounts: accounts}
}

// Require authenticates the request and rejects callers whose role is not in roles (any role when
// empty). Callers without a registered account get 403.
func (a *ActorResolver) Require(roles ...services.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		resolve := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, err := a.resolve(ctx)
			if err != nil {
				if errors.Is(err, services.ErrAccountNotFound) {
					httpx.WriteError(ctx, w, httpx.NewError("account_not_registered", "complete registration before using this endpoint", http.StatusForbidden))
					return
				}
				if errors.Is(err, errUnauthenticated) {
					httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
					return
				}
				writeServiceError(ctx, w, err)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", roleMessage(roles), http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
		})
		if a.authn == nil {
			return resolve
		}
		return a.authn.RequireFirebaseAuth()(resolve)
	}
}

// Optional attaches an actor when the request carries a token of a registered user and otherwise
// lets it through anonymously.
func (a *ActorResolver) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		attach := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if actor, err := a.resolve(ctx); err == nil {
				ctx = WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
		if a.authn == nil {
			return attach
		}
		return a.authn.OptionalFirebaseAuth()(attach)
	}
}

var errUnauthenticated = errors.New("unauthenticated")

func (a *ActorResolver) resolve(ctx context.Context) (services.Actor, error) {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor, nil
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, errUnauthenticated
	}
	if identity.IsAdmin() {
		return services.Actor{Role: services.RoleAdmin}, nil
	}
	if a.accounts == nil {
		return services.Actor{}, services.ErrAccountNotFound
	}
	account, err := a.accounts.Me(ctx, identity.UID)
	if err != nil {
		return services.Actor{}, err
	}
	return services.Actor{AccountID: account.ID, Role: services.Role(account.UserType)}, nil
}

func roleMessage(roles []services.Role) string {
	if len(roles) == 1 {
		return "only " + string(roles[0]) + "s can perform this action"
	}
	return "you don't have permission to perform this action"
}
