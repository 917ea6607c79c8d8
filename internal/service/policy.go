package service

import (
	"github.com/LuckiPhoenix/idest-server/internal/model"
)

// AccessPolicy holds the pure access predicates for sessions. Methods never
// error; callers translate false into a Forbidden error.
type AccessPolicy struct{}

func NewAccessPolicy() *AccessPolicy {
	return &AccessPolicy{}
}

// CanAccessSession allows the host, the class creator, an assigned teacher,
// or an active class member.
func (p *AccessPolicy) CanAccessSession(user *model.User, session *model.Session, class *model.Class) bool {
	if user == nil || session == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	if session.HostID == user.ID {
		return true
	}
	if class == nil {
		return false
	}
	if class.CreatorID == user.ID || class.HasTeacher(user.ID) {
		return true
	}
	return class.HasActiveMember(user.ID)
}

// CanModifySession is CanAccessSession minus plain membership.
func (p *AccessPolicy) CanModifySession(user *model.User, session *model.Session, class *model.Class) bool {
	if user == nil || session == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	if session.HostID == user.ID {
		return true
	}
	if class == nil {
		return false
	}
	return class.CreatorID == user.ID || class.HasTeacher(user.ID)
}

// CanKick allows an admin to remove anyone, and a teacher of the class to
// remove a student. Teachers may not act on other teachers, admins, or the
// host.
func (p *AccessPolicy) CanKick(requester, target *model.User, session *model.Session, class *model.Class) bool {
	return p.canActOnParticipant(requester, target, session, class)
}

// CanControlMedia follows the same rules as CanKick.
func (p *AccessPolicy) CanControlMedia(requester, target *model.User, session *model.Session, class *model.Class) bool {
	return p.canActOnParticipant(requester, target, session, class)
}

func (p *AccessPolicy) canActOnParticipant(requester, target *model.User, session *model.Session, class *model.Class) bool {
	if requester == nil || target == nil || session == nil {
		return false
	}
	if requester.IsAdmin() {
		return true
	}
	if !requester.IsTeacher() {
		return false
	}
	if class == nil || (class.CreatorID != requester.ID && !class.HasTeacher(requester.ID)) {
		return false
	}
	// Teachers only act on students, and never on the host.
	if target.Role != model.RoleStudent {
		return false
	}
	return target.ID != session.HostID
}
