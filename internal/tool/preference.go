package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"calendarbot/internal/domain"
)

var preferenceCategories = []string{"scheduling", "personal", "location", "general"}

func savePreferenceDef(store domain.PreferenceStore) Definition {
	return Definition{
		Name:        SavePreference,
		Description: "Remember a fact or preference the user stated, e.g. \"no meetings before 10\" or \"I live in Berlin\".",
		Schema: Schema{
			Properties: map[string]Param{
				"content":  {Type: "string", Description: "The preference, in one sentence"},
				"category": {Type: "string", Enum: preferenceCategories, Description: "Kind of preference"},
			},
			Required: []string{"content"},
		},
		Handler: func(ctx context.Context, args Args, caller domain.Caller) Outcome {
			content := strings.TrimSpace(args.String("content"))
			if content == "" {
				return Fail(errors.New("content must not be empty"))
			}
			category := args.String("category")
			if category == "" {
				category = "general"
			}
			pref := domain.Preference{UserID: caller.UserID, Category: category, Content: content}
			if err := store.SavePreference(ctx, pref); err != nil {
				return Fail(fmt.Errorf("save preference: %w", err))
			}
			return Ok(pref)
		},
		Summarize: func(o Outcome) (string, error) {
			p, ok := o.Payload.(domain.Preference)
			if !ok {
				return "", fmt.Errorf("unexpected payload %T", o.Payload)
			}
			return fmt.Sprintf("Saved %s preference: %s", p.Category, p.Content), nil
		},
	}
}
