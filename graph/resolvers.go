package graph

import (
	"errors"

	"github.com/graphql-go/graphql"

	"github.com/cppla/gqlbbs/services"
	"github.com/cppla/gqlbbs/utils"
)

// errInternal replaces infrastructure failures in responses; the cause is logged.
var errInternal = errors.New("internal server error")

type resolver struct {
	auth  Auth
	posts Posts
}

// publicError keeps errors clients act on and masks the rest.
func publicError(field string, err error) error {
	if errors.Is(err, services.ErrNotAuthenticated) {
		return services.ErrNotAuthenticated
	}
	utils.Sugar.Errorw("graphql resolver failed", "field", field, "error", err)
	return errInternal
}

func (r *resolver) me(p graphql.ResolveParams) (interface{}, error) {
	user, err := r.auth.Me(p.Context, services.RequestContextFrom(p.Context))
	if err != nil {
		return nil, publicError("me", err)
	}
	return userToGraph(user), nil
}

func (r *resolver) postList(p graphql.ResolveParams) (interface{}, error) {
	limit, _ := p.Args["limit"].(int)
	cursor, _ := p.Args["cursor"].(string)
	posts, err := r.posts.List(p.Context, services.ClampLimit(limit), cursor)
	if err != nil {
		return nil, publicError("posts", err)
	}
	return postsToGraph(posts), nil
}

func (r *resolver) post(p graphql.ResolveParams) (interface{}, error) {
	id, _ := p.Args["id"].(int)
	if id <= 0 {
		return nil, nil
	}
	post, err := r.posts.Get(p.Context, uint(id))
	if err != nil {
		return nil, publicError("post", err)
	}
	return postToGraph(post), nil
}

func (r *resolver) register(p graphql.ResolveParams) (interface{}, error) {
	opts, _ := p.Args["options"].(map[string]interface{})
	in := services.UsernamePasswordInput{
		Username: stringArg(opts, "username"),
		Email:    stringArg(opts, "email"),
		Password: stringArg(opts, "password"),
	}
	res, err := r.auth.Register(p.Context, services.RequestContextFrom(p.Context), in)
	if err != nil {
		return nil, publicError("register", err)
	}
	return userResponseToGraph(res), nil
}

func (r *resolver) login(p graphql.ResolveParams) (interface{}, error) {
	res, err := r.auth.Login(p.Context, services.RequestContextFrom(p.Context),
		stringArg(p.Args, "usernameOrEmail"), stringArg(p.Args, "password"))
	if err != nil {
		return nil, publicError("login", err)
	}
	return userResponseToGraph(res), nil
}

func (r *resolver) logout(p graphql.ResolveParams) (interface{}, error) {
	return r.auth.Logout(p.Context, services.RequestContextFrom(p.Context)), nil
}

func (r *resolver) forgotPassword(p graphql.ResolveParams) (interface{}, error) {
	return r.auth.ForgotPassword(p.Context, stringArg(p.Args, "email")), nil
}

func (r *resolver) changePassword(p graphql.ResolveParams) (interface{}, error) {
	res, err := r.auth.ChangePassword(p.Context, services.RequestContextFrom(p.Context),
		stringArg(p.Args, "token"), stringArg(p.Args, "newPassword"))
	if err != nil {
		return nil, publicError("changePassword", err)
	}
	return userResponseToGraph(res), nil
}

func (r *resolver) createPost(p graphql.ResolveParams) (interface{}, error) {
	input, _ := p.Args["input"].(map[string]interface{})
	post, err := r.posts.Create(p.Context, services.RequestContextFrom(p.Context), services.PostInput{
		Title: stringArg(input, "title"),
		Text:  stringArg(input, "text"),
	})
	if err != nil {
		return nil, publicError("createPost", err)
	}
	return postToGraph(post), nil
}

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}
