package recipeclient

import (
	"context"
	"net/http"

	"github.com/starford/mise/internal/models"
)

// ListComments fetches the comments attached to a recipe.
func (c *Client) ListComments(ctx context.Context, recipeID models.ID) ([]models.Comment, error) {
	var comments []models.Comment
	if err := c.do(ctx, "fetch comments", http.MethodGet, c.endpoint(recipeID.String(), "comments"), nil, &comments); err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	for i := range comments {
		comments[i].RecipeID = recipeID
	}
	return comments, nil
}

// CreateComment attaches a new comment to a recipe.
func (c *Client) CreateComment(ctx context.Context, recipeID models.ID, in models.CommentInput) (*models.Comment, error) {
	var cm models.Comment
	if err := c.do(ctx, "add comment", http.MethodPost, c.endpoint(recipeID.String(), "comments"), in, &cm); err != nil {
		return nil, err
	}
	cm.RecipeID = recipeID
	return &cm, nil
}

// UpdateComment replaces a comment.
func (c *Client) UpdateComment(ctx context.Context, recipeID, commentID models.ID, in models.CommentInput) (*models.Comment, error) {
	var cm models.Comment
	target := c.endpoint(recipeID.String(), "comments", commentID.String())
	if err := c.do(ctx, "update comment", http.MethodPut, target, in, &cm); err != nil {
		return nil, err
	}
	cm.RecipeID = recipeID
	return &cm, nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, recipeID, commentID models.ID) error {
	target := c.endpoint(recipeID.String(), "comments", commentID.String())
	return c.do(ctx, "delete comment", http.MethodDelete, target, nil, nil)
}
