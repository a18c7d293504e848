package client

import (
	"context"

	"github.com/cppla/gqlbbs/pagination"
)

type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type Post struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	TextSnippet string `json:"textSnippet"`
	Points      int    `json:"points"`
	CreatorID   int    `json:"creatorId"`
	Creator     *User  `json:"creator"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type UserResponse struct {
	Errors []FieldError `json:"errors"`
	User   *User        `json:"user"`
}

// UsernamePasswordInput is the registration form.
type UsernamePasswordInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

const userFields = `id username email createdAt updatedAt`

const postFields = `id title text textSnippet points creatorId createdAt updatedAt creator { ` + userFields + ` }`

// Me returns the session user, nil when anonymous. The answer is cached.
func (c *Client) Me(ctx context.Context) (*User, error) {
	if u, ok := c.cache.Me(); ok {
		return u, nil
	}
	var data struct {
		Me *User `json:"me"`
	}
	if err := c.query(ctx, `query Me { me { `+userFields+` } }`, nil, &data); err != nil {
		return nil, err
	}
	c.cache.SetMe(data.Me)
	return data.Me, nil
}

// Register creates an account. On success the new user becomes the cached
// current user; field errors leave the cache alone.
func (c *Client) Register(ctx context.Context, in UsernamePasswordInput) (UserResponse, error) {
	var data struct {
		Register UserResponse `json:"register"`
	}
	err := c.mutate(ctx, `mutation Register($options: UsernamePasswordInput!) { register(options: $options) { errors { field message } user { `+userFields+` } } }`,
		map[string]interface{}{"options": in}, &data)
	if err != nil {
		return UserResponse{}, err
	}
	c.applyUserResponse(data.Register)
	return data.Register, nil
}

// Login signs in by username, or by email when the identifier contains "@".
func (c *Client) Login(ctx context.Context, usernameOrEmail, password string) (UserResponse, error) {
	var data struct {
		Login UserResponse `json:"login"`
	}
	err := c.mutate(ctx, `mutation Login($usernameOrEmail: String!, $password: String!) { login(usernameOrEmail: $usernameOrEmail, password: $password) { errors { field message } user { `+userFields+` } } }`,
		map[string]interface{}{"usernameOrEmail": usernameOrEmail, "password": password}, &data)
	if err != nil {
		return UserResponse{}, err
	}
	c.applyUserResponse(data.Login)
	return data.Login, nil
}

// Logout ends the session. The cached user becomes anonymous once the server answers.
func (c *Client) Logout(ctx context.Context) (bool, error) {
	var data struct {
		Logout bool `json:"logout"`
	}
	if err := c.mutate(ctx, `mutation Logout { logout }`, nil, &data); err != nil {
		return false, err
	}
	c.cache.SetMe(nil)
	return data.Logout, nil
}

// ForgotPassword asks for a reset mail. The server answers true whether or not the email is known.
func (c *Client) ForgotPassword(ctx context.Context, email string) (bool, error) {
	var data struct {
		ForgotPassword bool `json:"forgotPassword"`
	}
	err := c.mutate(ctx, `mutation ForgotPassword($email: String!) { forgotPassword(email: $email) }`,
		map[string]interface{}{"email": email}, &data)
	return data.ForgotPassword, err
}

// ChangePassword redeems a reset token and signs in.
func (c *Client) ChangePassword(ctx context.Context, token, newPassword string) (UserResponse, error) {
	var data struct {
		ChangePassword UserResponse `json:"changePassword"`
	}
	err := c.mutate(ctx, `mutation ChangePassword($token: String!, $newPassword: String!) { changePassword(token: $token, newPassword: $newPassword) { errors { field message } user { `+userFields+` } } }`,
		map[string]interface{}{"token": token, "newPassword": newPassword}, &data)
	if err != nil {
		return UserResponse{}, err
	}
	c.applyUserResponse(data.ChangePassword)
	return data.ChangePassword, nil
}

// CreatePost publishes a post. Cached post pages are dropped so the next
// Posts call sees it.
func (c *Client) CreatePost(ctx context.Context, title, text string) (*Post, error) {
	var data struct {
		CreatePost *Post `json:"createPost"`
	}
	err := c.mutate(ctx, `mutation CreatePost($input: PostInput!) { createPost(input: $input) { `+postFields+` } }`,
		map[string]interface{}{"input": map[string]string{"title": title, "text": text}}, &data)
	if err != nil {
		return nil, err
	}
	c.cache.Posts.Invalidate(postsField)
	return data.CreatePost, nil
}

// Post fetches a single post, nil when it does not exist. It is not cached.
func (c *Client) Post(ctx context.Context, id int) (*Post, error) {
	var data struct {
		Post *Post `json:"post"`
	}
	err := c.query(ctx, `query Post($id: Int!) { post(id: $id) { `+postFields+` } }`,
		map[string]interface{}{"id": id}, &data)
	return data.Post, err
}

// Posts returns the merged view of every page loaded so far, fetching the
// requested page first when the cache does not hold it. An empty cursor asks
// for the newest posts.
func (c *Client) Posts(ctx context.Context, limit int, cursor string) (pagination.Result[Post], error) {
	args := map[string]any{"limit": limit, "cursor": nil}
	if cursor != "" {
		args["cursor"] = cursor
	}

	res, err := c.cache.Posts.Resolve(postsField, args)
	if err != nil {
		return res, err
	}
	if !res.NeedRefetch && !res.Partial {
		return res, nil
	}

	var data struct {
		Posts []Post `json:"posts"`
	}
	err = c.query(ctx, `query Posts($limit: Int!, $cursor: String) { posts(limit: $limit, cursor: $cursor) { `+postFields+` } }`, args, &data)
	if err != nil {
		return res, err
	}
	if err := c.cache.Posts.Record(postsField, args, data.Posts); err != nil {
		return res, err
	}
	return c.cache.Posts.Resolve(postsField, args)
}

// NextCursor is the cursor of the page after items, empty when items is empty.
func NextCursor(items []Post) string {
	if len(items) == 0 {
		return ""
	}
	return items[len(items)-1].CreatedAt
}

func (c *Client) applyUserResponse(r UserResponse) {
	if len(r.Errors) == 0 && r.User != nil {
		c.cache.SetMe(r.User)
	}
}
