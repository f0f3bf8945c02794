package articles

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tkilaker/inkdesk/internal/api"
	"github.com/tkilaker/inkdesk/internal/config"
)

// Generator starts bulk article generation
type Generator interface {
	GenerateArticles(ctx context.Context, req api.GenerateRequest) (string, error)
}

// GenerateForm is the bulk generation form. JSON names follow the backend
// payload so validation errors line up with the form fields.
type GenerateForm struct {
	Keywords         string              `json:"keywords"`
	Language         string              `json:"language"`
	NumFAQs          int                 `json:"numFAQs"`
	GPTVersion       string              `json:"gptVersion"`
	AIGeneratedTitle bool                `json:"aiGeneratedTitle"`
	WordCount        int                 `json:"wordCount"`
	Sites            []api.WordPressSite `json:"wordPressSites"`
}

// NewGenerateForm returns the form with its initial values
func NewGenerateForm(presets config.Presets) GenerateForm {
	form := GenerateForm{AIGeneratedTitle: true}
	if len(presets.Languages) > 0 {
		form.Language = presets.Languages[0]
	}
	if len(presets.GPTVersions) > 0 {
		form.GPTVersion = presets.GPTVersions[0].Value
	}
	if len(presets.WordCounts) > 0 {
		form.WordCount = presets.WordCounts[0].Words
	}
	return form
}

// Validate checks the form against the configured presets
func (f GenerateForm) Validate(presets config.Presets) error {
	languages := make([]any, len(presets.Languages))
	for i, l := range presets.Languages {
		languages[i] = l
	}
	versions := make([]any, len(presets.GPTVersions))
	for i, v := range presets.GPTVersions {
		versions[i] = v.Value
	}
	counts := make([]any, len(presets.WordCounts))
	for i, c := range presets.WordCounts {
		counts[i] = c.Words
	}

	faqRules := []validation.Rule{
		validation.Required.Error("Number of FAQs must be a positive number"),
		validation.Min(1).Error("Number of FAQs must be a positive number"),
	}
	if presets.MaxFAQs > 0 {
		faqRules = append(faqRules, validation.Max(presets.MaxFAQs).Error(fmt.Sprintf("Number of FAQs must be at most %d", presets.MaxFAQs)))
	}

	return validation.ValidateStruct(&f,
		validation.Field(&f.Keywords, validation.Required.Error("Keywords are required")),
		validation.Field(&f.Language, validation.Required, validation.In(languages...).Error("Unsupported language")),
		validation.Field(&f.NumFAQs, faqRules...),
		validation.Field(&f.GPTVersion, validation.Required, validation.In(versions...).Error("Unsupported GPT version")),
		validation.Field(&f.WordCount, validation.Required, validation.In(counts...).Error("Unsupported word count")),
	)
}

// ArticleTypeFor returns the article type implied by a word count preset
func ArticleTypeFor(presets config.Presets, words int) string {
	for _, c := range presets.WordCounts {
		if c.Words == words {
			return c.ArticleType
		}
	}
	return ""
}

// GPTLabel returns the display label for a model identifier
func GPTLabel(presets config.Presets, value string) string {
	for _, v := range presets.GPTVersions {
		if v.Value == value {
			return v.Label
		}
	}
	return value
}

// Request validates the form and builds the generation payload. The article
// type is always derived from the chosen word count.
func (f GenerateForm) Request(presets config.Presets) (api.GenerateRequest, error) {
	if err := f.Validate(presets); err != nil {
		return api.GenerateRequest{}, err
	}
	sites := f.Sites
	if sites == nil {
		sites = []api.WordPressSite{}
	}
	return api.GenerateRequest{
		Keywords:         f.Keywords,
		Language:         f.Language,
		NumFAQs:          f.NumFAQs,
		GPTVersion:       f.GPTVersion,
		AIGeneratedTitle: f.AIGeneratedTitle,
		WordPressSites:   sites,
		WordCount:        f.WordCount,
		ArticleType:      ArticleTypeFor(presets, f.WordCount),
	}, nil
}

// Submit validates the form and starts generation, returning the backend message
func Submit(ctx context.Context, gen Generator, form GenerateForm, presets config.Presets) (string, error) {
	req, err := form.Request(presets)
	if err != nil {
		return "", err
	}
	msg, err := gen.GenerateArticles(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate articles: %w", err)
	}
	return msg, nil
}
