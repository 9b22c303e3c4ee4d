package mcpserver

// RecipeFormatContract describes the recipe and comment shapes that LLM
// consumers should follow when calling the mutation tools.
const RecipeFormatContract = `# mise Recipe Contract

Recipes live on a remote REST backend. Every tool call is one request to it,
followed by a re-fetch of the affected list. Nothing is cached.

## Recipe

| field | type | notes |
|---|---|---|
| id | string | assigned by the backend, never sent on create |
| name | string | REQUIRED, non-blank |
| ingredients | string | comma separated, e.g. ` + "`" + `egg, flour, milk` + "`" + `; blanks are dropped |
| scheduled_date | string | OPTIONAL, ` + "`" + `YYYY-MM-DD` + "`" + ` or natural language such as ` + "`" + `next friday` + "`" + ` |

Updates replace the whole recipe: send every field, not only the changed ones.
The backend may drop a recipe's comments when it is updated.

## Comment

| field | type | notes |
|---|---|---|
| id | string | assigned by the backend |
| comment | string | REQUIRED, non-blank |
| date | string | set to today's UTC date on add and on edit |

## Results

Successful tools return JSON with the re-fetched data and the notices a
person would have seen, e.g. ` + "`" + `Recipe added successfully!` + "`" + `.
Failures return an error result whose text is the error notice, e.g.
` + "`" + `Error adding recipe: server is unavailable (status 500)` + "`" + `.

## Example

` + "```" + `json
{"name": "Pancakes", "ingredients": "egg, flour, milk", "scheduled_date": "2024-05-01"}
` + "```" + `
`
