package model

import "time"

// User is the internal record for an identity-provider account.
type User struct {
	ID           string    `json:"id" bson:"_id,omitempty"`
	ExternalID   string    `json:"externalId" bson:"externalId"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	ProfileImage string    `json:"profileImage" bson:"profileImage"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UserSummary holds the display fields embedded in session responses.
type UserSummary struct {
	ID           string `json:"id"`
	ExternalID   string `json:"externalId"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// Summary returns the display fields of u.
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:           u.ID,
		ExternalID:   u.ExternalID,
		Name:         u.Name,
		Email:        u.Email,
		ProfileImage: u.ProfileImage,
	}
}
