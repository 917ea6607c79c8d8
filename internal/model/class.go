package model

import "time"

// ClassMember is an enrollment row. Inactive members keep their history but
// lose session access.
type ClassMember struct {
	UserID   string    `json:"userId" bson:"userId"`
	IsActive bool      `json:"isActive" bson:"isActive"`
	JoinedAt time.Time `json:"joinedAt" bson:"joinedAt"`
}

// Class groups the people a session is held for: its creator, assigned
// teachers, and enrolled members.
type Class struct {
	ID         string        `json:"id" bson:"_id"`
	Name       string        `json:"name" bson:"name"`
	CreatorID  string        `json:"creatorId" bson:"creatorId"`
	TeacherIDs []string      `json:"teacherIds" bson:"teacherIds"`
	Members    []ClassMember `json:"members" bson:"members"`
	CreatedAt  time.Time     `json:"createdAt" bson:"createdAt"`
}

// HasTeacher reports whether the user is an assigned teacher of the class.
func (c *Class) HasTeacher(userID string) bool {
	for _, id := range c.TeacherIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// HasActiveMember reports whether the user is an active enrollment.
func (c *Class) HasActiveMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID && m.IsActive {
			return true
		}
	}
	return false
}
