package services

import "fmt"

// Identity is who is calling the chat proxy. It is resolved once, at the
// HTTP boundary.
type Identity interface {
	String() string
	IsGuest() bool
}

type Anonymous struct{}

func (Anonymous) String() string { return "guest" }
func (Anonymous) IsGuest() bool  { return true }

type Authenticated struct {
	UserID uint
	Role   string
}

func (a Authenticated) String() string { return fmt.Sprintf("user:%d(%s)", a.UserID, a.Role) }
func (Authenticated) IsGuest() bool    { return false }
