package recipeclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/starford/mise/internal/models"
)

// ListRecipes fetches the recipe collection filtered by search and ordered
// by sortBy. Both query keys are always sent, empty or not.
func (c *Client) ListRecipes(ctx context.Context, search, sortBy string) ([]models.Recipe, error) {
	q := url.Values{}
	q.Set("search", search)
	q.Set("sort_by", sortBy)

	var recipes []models.Recipe
	if err := c.do(ctx, "list recipes", http.MethodGet, c.base+"?"+q.Encode(), nil, &recipes); err != nil {
		return nil, err
	}
	if recipes == nil {
		recipes = []models.Recipe{}
	}
	return recipes, nil
}

// GetRecipe fetches a single recipe.
func (c *Client) GetRecipe(ctx context.Context, id models.ID) (*models.Recipe, error) {
	var r models.Recipe
	if err := c.do(ctx, "get recipe", http.MethodGet, c.endpoint(id.String()), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRecipe sends a creation request and returns the stored recipe.
func (c *Client) CreateRecipe(ctx context.Context, in models.RecipeInput) (*models.Recipe, error) {
	var r models.Recipe
	if err := c.do(ctx, "add recipe", http.MethodPost, c.base, normalizeInput(in), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRecipe replaces the recipe with id.
func (c *Client) UpdateRecipe(ctx context.Context, id models.ID, in models.RecipeInput) (*models.Recipe, error) {
	var r models.Recipe
	if err := c.do(ctx, "update recipe", http.MethodPut, c.endpoint(id.String()), normalizeInput(in), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRecipe removes the recipe with id.
func (c *Client) DeleteRecipe(ctx context.Context, id models.ID) error {
	return c.do(ctx, "delete recipe", http.MethodDelete, c.endpoint(id.String()), nil, nil)
}

func normalizeInput(in models.RecipeInput) models.RecipeInput {
	if in.Ingredients == nil {
		in.Ingredients = []string{}
	}
	return in
}
