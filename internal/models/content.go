package models

import (
	"fmt"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentArticle        ContentType = "article"
	ContentRecipe         ContentType = "recipe"
	ContentRecommendation ContentType = "recommendation"
	ContentCustom         ContentType = "custom"
)

// PreferenceKey names one of the subscriber opt-in flags.
type PreferenceKey string

const (
	PreferenceArticles        PreferenceKey = "articles"
	PreferenceRecipes         PreferenceKey = "recipes"
	PreferenceRecommendations PreferenceKey = "recommendations"
)

// AudienceAll targets every subscriber regardless of preferences.
const AudienceAll = "all"

// ContentRoute is everything the pipeline needs to know about a
// content-backed notification type.
type ContentRoute struct {
	Type          ContentType
	Table         string
	SummaryColumn string
	PathSegment   string
	DisplayName   string
	Preference    PreferenceKey
}

var contentRoutes = [...]ContentRoute{
	{Type: ContentArticle, Table: "blog_posts", SummaryColumn: "excerpt", PathSegment: "blog", DisplayName: "Article", Preference: PreferenceArticles},
	{Type: ContentRecipe, Table: "recipes", SummaryColumn: "description", PathSegment: "recipes", DisplayName: "Recipe", Preference: PreferenceRecipes},
	{Type: ContentRecommendation, Table: "affiliate_products", SummaryColumn: "description", PathSegment: "recommendations", DisplayName: "Recommendation", Preference: PreferenceRecommendations},
}

// ContentRoutes returns the routing table for all content-backed types.
func ContentRoutes() []ContentRoute {
	out := make([]ContentRoute, len(contentRoutes))
	copy(out, contentRoutes[:])
	return out
}

// Route returns the routing entry for t. Custom notifications have none.
func (t ContentType) Route() (ContentRoute, bool) {
	for _, r := range contentRoutes {
		if r.Type == t {
			return r, true
		}
	}
	return ContentRoute{}, false
}

func (t ContentType) IsCustom() bool { return t == ContentCustom }

func (t ContentType) Valid() bool {
	if t.IsCustom() {
		return true
	}
	_, ok := t.Route()
	return ok
}

func ParseContentType(s string) (ContentType, error) {
	t := ContentType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidContentType, s)
	}
	return t, nil
}

// ParseAudience accepts "all" (or empty) and the preference names.
func ParseAudience(s string) (string, error) {
	switch s {
	case "", AudienceAll:
		return AudienceAll, nil
	case string(PreferenceArticles), string(PreferenceRecipes), string(PreferenceRecommendations):
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAudience, s)
}

// ContentItem is the slice of an article, recipe or recommendation that
// an email needs.
type ContentItem struct {
	ID      uuid.UUID   `json:"id"`
	Type    ContentType `json:"type"`
	Slug    string      `json:"slug"`
	Title   string      `json:"title"`
	Excerpt string      `json:"excerpt,omitempty"`
}
