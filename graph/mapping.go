package graph

import (
	"github.com/cppla/gqlbbs/models"
	"github.com/cppla/gqlbbs/services"
)

const snippetLength = 50

// User is the API view of a user. Credentials never leave the storage model.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Post is the API view of a post.
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

// UserResponse carries either field errors or a user.
type UserResponse struct {
	Errors []services.FieldError `json:"errors"`
	User   *User                 `json:"user"`
}

func userToGraph(u *models.User) *User {
	if u == nil || u.ID == 0 {
		return nil
	}
	return &User{
		ID:        int(u.ID),
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: services.FormatCursor(u.CreatedAt),
		UpdatedAt: services.FormatCursor(u.UpdatedAt),
	}
}

func postToGraph(p *models.Post) *Post {
	if p == nil {
		return nil
	}
	return &Post{
		ID:          int(p.ID),
		Title:       p.Title,
		Text:        p.Text,
		TextSnippet: snippet(p.Text, snippetLength),
		Points:      p.Points,
		CreatorID:   int(p.CreatorID),
		Creator:     userToGraph(&p.Creator),
		CreatedAt:   services.FormatCursor(p.CreatedAt),
		UpdatedAt:   services.FormatCursor(p.UpdatedAt),
	}
}

func postsToGraph(posts []models.Post) []*Post {
	out := make([]*Post, 0, len(posts))
	for i := range posts {
		out = append(out, postToGraph(&posts[i]))
	}
	return out
}

func userResponseToGraph(r services.UserResponse) *UserResponse {
	return &UserResponse{Errors: r.Errors, User: userToGraph(r.User)}
}

// snippet cuts s to at most n runes.
func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
