package clientsync

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mise/internal/apperr"
	"github.com/starford/mise/internal/dateparse"
	"github.com/starford/mise/internal/models"
)

// RecipeDraft is the raw content of the recipe form.
type RecipeDraft struct {
	Name          string `json:"name"`
	Ingredients   string `json:"ingredients"`
	ScheduledDate string `json:"scheduled_date"`
}

// Input validates the draft and converts it into a request body. Dates may
// be written as YYYY-MM-DD or in natural language relative to now.
func (d RecipeDraft) Input(now time.Time) (models.RecipeInput, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.ScheduledDate = strings.TrimSpace(d.ScheduledDate)

	var date string
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.ScheduledDate, validation.By(func(any) error {
			var err error
			date, err = dateparse.Normalize(d.ScheduledDate, now)
			if err != nil {
				return validation.NewError("validation_date", "must be a date such as 2024-05-01 or next friday")
			}
			return nil
		})),
	)
	if err != nil {
		return models.RecipeInput{}, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return models.RecipeInput{
		Name:          d.Name,
		Ingredients:   models.ParseIngredients(d.Ingredients),
		ScheduledDate: date,
	}, nil
}

func validateCommentText(text string) error {
	if err := validation.Validate(strings.TrimSpace(text), validation.Required); err != nil {
		return fmt.Errorf("%w: comment %v", apperr.ErrInvalidInput, err)
	}
	return nil
}
