package model

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// User is an authenticated platform principal. The coordinator only reads
// users; account management lives in a separate service.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	FullName  string    `json:"fullName" bson:"fullName"`
	Email     string    `json:"email" bson:"email"`
	Role      Role      `json:"role" bson:"role"`
	AvatarURL string    `json:"avatarUrl,omitempty" bson:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsTeacher() bool {
	return u.Role == RoleTeacher
}
