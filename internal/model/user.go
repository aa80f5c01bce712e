package model

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// User is a team member. Password is compared in plaintext.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	Password  string `json:"password,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	Type      string `json:"type,omitempty"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Public strips the credential before the user leaves the process.
func (u User) Public() User {
	u.Password = ""
	return u
}

// AvatarFor builds the placeholder avatar URL used for new members.
func AvatarFor(username string) string {
	return "https://picsum.photos/seed/" + username + "/200"
}

// DefaultAdmin is bootstrapped into empty user directories.
func DefaultAdmin() User {
	return User{
		ID:        "admin-1",
		Username:  "admin",
		Name:      "System Admin",
		Role:      RoleAdmin,
		Password:  "admin",
		AvatarURL: AvatarFor("admin"),
	}
}

// DemoTeam is the seed data for local development stores.
func DemoTeam() []User {
	member := func(id, username, name string) User {
		return User{
			ID:        id,
			Username:  username,
			Name:      name,
			Role:      RoleUser,
			Password:  username,
			AvatarURL: AvatarFor(username),
		}
	}
	return []User{
		DefaultAdmin(),
		member("user-1", "user", "Jane Doe"),
		member("user-2", "user2", "Michael Chen"),
		member("user-3", "user3", "Sarah Connor"),
		member("user-4", "user4", "David Smith"),
	}
}
