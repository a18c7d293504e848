// Package graph exposes the board over GraphQL. Its object types are
// independent of the storage models; mapping.go joins the two.
package graph

import (
	"context"

	"github.com/graphql-go/graphql"

	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/services"
)

// Auth is the account API the resolvers call.
type Auth interface {
	Me(ctx context.Context, rc *services.RequestContext) (*models.User, error)
	Register(ctx context.Context, rc *services.RequestContext, in services.UsernamePasswordInput) (services.UserResponse, error)
	Login(ctx context.Context, rc *services.RequestContext, usernameOrEmail, password string) (services.UserResponse, error)
	Logout(ctx context.Context, rc *services.RequestContext) bool
	ForgotPassword(ctx context.Context, email string) bool
	ChangePassword(ctx context.Context, rc *services.RequestContext, token, newPassword string) (services.UserResponse, error)
}

// Posts is the post API the resolvers call.
type Posts interface {
	List(ctx context.Context, limit int, cursor string) ([]models.Post, error)
	Get(ctx context.Context, id uint) (*models.Post, error)
	Create(ctx context.Context, rc *services.RequestContext, in services.PostInput) (*models.Post, error)
}

var userType = graphql.NewObject(graphql.ObjectConfig{
	Name: "User",
	Fields: graphql.Fields{
		"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"username":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"email":     &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"createdAt": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"updatedAt": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

var postType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Post",
	Fields: graphql.Fields{
		"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"title":       &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"text":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"textSnippet": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"points":      &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"creatorId":   &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"creator":     &graphql.Field{Type: userType},
		"createdAt":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"updatedAt":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

var fieldErrorType = graphql.NewObject(graphql.ObjectConfig{
	Name: "FieldError",
	Fields: graphql.Fields{
		"field":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"message": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

var userResponseType = graphql.NewObject(graphql.ObjectConfig{
	Name: "UserResponse",
	Fields: graphql.Fields{
		"errors": &graphql.Field{
			Type: graphql.NewList(graphql.NewNonNull(fieldErrorType)),
			// null rather than [] when the operation succeeded
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if r, ok := p.Source.(*UserResponse); ok && len(r.Errors) > 0 {
					return r.Errors, nil
				}
				return nil, nil
			},
		},
		"user": &graphql.Field{Type: userType},
	},
})

var usernamePasswordInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "UsernamePasswordInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"username": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"email":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"password": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
	},
})

var postInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "PostInput",
	Fields: graphql.InputObjectConfigFieldMap{
		"title": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		"text":  &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
	},
})

// NewSchema builds the executable schema over the given services.
func NewSchema(auth Auth, posts Posts) (graphql.Schema, error) {
	r := &resolver{auth: auth, posts: posts}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"me": &graphql.Field{
				Type:    userType,
				Resolve: r.me,
			},
			"posts": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(postType))),
				Args: graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"cursor": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: r.postList,
			},
			"post": &graphql.Field{
				Type: postType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: r.post,
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"register": &graphql.Field{
				Type: graphql.NewNonNull(userResponseType),
				Args: graphql.FieldConfigArgument{
					"options": &graphql.ArgumentConfig{Type: graphql.NewNonNull(usernamePasswordInput)},
				},
				Resolve: r.register,
			},
			"login": &graphql.Field{
				Type: graphql.NewNonNull(userResponseType),
				Args: graphql.FieldConfigArgument{
					"usernameOrEmail": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"password":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.login,
			},
			"logout": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.Boolean),
				Resolve: r.logout,
			},
			"forgotPassword": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: graphql.FieldConfigArgument{
					"email": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.forgotPassword,
			},
			"changePassword": &graphql.Field{
				Type: graphql.NewNonNull(userResponseType),
				Args: graphql.FieldConfigArgument{
					"token":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"newPassword": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.changePassword,
			},
			"createPost": &graphql.Field{
				Type: graphql.NewNonNull(postType),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(postInput)},
				},
				Resolve: guarded(isAuth, r.createPost),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
}
