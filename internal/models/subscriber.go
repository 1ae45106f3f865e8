package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Preferences are the independent opt-in flags of a subscriber.
type Preferences struct {
	Articles        bool `json:"articles"`
	Recipes         bool `json:"recipes"`
	Recommendations bool `json:"recommendations"`
}

// DefaultPreferences opts a new subscriber into every category.
func DefaultPreferences() Preferences {
	return Preferences{Articles: true, Recipes: true, Recommendations: true}
}

// Allows reports whether the flag named by key is set.
func (p Preferences) Allows(key PreferenceKey) bool {
	switch key {
	case PreferenceArticles:
		return p.Articles
	case PreferenceRecipes:
		return p.Recipes
	case PreferenceRecommendations:
		return p.Recommendations
	}
	return false
}

// PreferencesUpdate is a partial update; nil fields are left untouched.
type PreferencesUpdate struct {
	Articles        *bool `json:"articles,omitempty"`
	Recipes         *bool `json:"recipes,omitempty"`
	Recommendations *bool `json:"recommendations,omitempty"`
}

func (u *PreferencesUpdate) IsEmpty() bool {
	return u == nil || (u.Articles == nil && u.Recipes == nil && u.Recommendations == nil)
}

// Merge returns p with every non-nil field of u applied.
func (p Preferences) Merge(u *PreferencesUpdate) Preferences {
	if u == nil {
		return p
	}
	if u.Articles != nil {
		p.Articles = *u.Articles
	}
	if u.Recipes != nil {
		p.Recipes = *u.Recipes
	}
	if u.Recommendations != nil {
		p.Recommendations = *u.Recommendations
	}
	return p
}

type Subscriber struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	Preferences  Preferences `json:"preferences"`
	SubscribedAt time.Time   `json:"subscribed_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type SubscribeRequest struct {
	Email       string             `json:"email" binding:"required,email"`
	Preferences *PreferencesUpdate `json:"preferences"`
}

type UnsubscribeRequest struct {
	Email       string             `json:"email" binding:"required,email"`
	Preferences *PreferencesUpdate `json:"preferences"`
	All         bool               `json:"all"`
}

func NewSubscriber(email string, prefs Preferences) *Subscriber {
	now := time.Now().UTC()
	return &Subscriber{
		ID:           uuid.New(),
		Email:        email,
		Preferences:  prefs,
		SubscribedAt: now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail trims surrounding whitespace. Case is preserved: addresses
// are matched exactly as stored.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
