package models

// User roles, least to most privileged.
const (
	RoleStudent   = "student"
	RoleTeacher   = "teacher"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// UserProfile is keyed by the originating network identity.
type UserProfile struct {
	Identity     string   `json:"identity"`
	Name         string   `json:"name,omitempty"`
	Role         string   `json:"role"`
	Blocked      bool     `json:"blocked,omitempty"`
	Avatar       string   `json:"avatar,omitempty"`
	Bio          string   `json:"bio,omitempty"`
	Status       string   `json:"status,omitempty"`
	Achievements []string `json:"achievements,omitempty"`
	Points       int      `json:"points,omitempty"`
	FirstSeen    int64    `json:"firstSeen"`
	LastSeen     int64    `json:"lastSeen"`
}

// HasAchievement reports whether the profile already holds the achievement.
func (p *UserProfile) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// Subscription is a push delivery target registered for an identity. The
// Endpoint/Keys pair is the standard Web Push subscription shape.
type Subscription struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	CreatedTS int64 `json:"createdTs"`
}
