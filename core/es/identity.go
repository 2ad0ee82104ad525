package es

// Identity is the user or domain context an aggregate acts on behalf of. It
// only contributes audit metadata; no algorithm consults it.
type Identity interface {
	DisplayName() string
}

// User is a plain Identity.
type User struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

func (u User) DisplayName() string {
	if u.Domain == "" {
		return u.Name
	}
	return u.Name + "@" + u.Domain
}
