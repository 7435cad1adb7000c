// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package session

// Decision is what a navigation guard tells the presentation layer to do.
type Decision int

const (
	// Pending means the session has not finished bootstrapping yet.
	Pending Decision = iota
	Allow
	RedirectLogin
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "pending"
	}
}

// Route describes the access needs of a navigation target.
type Route struct {
	RequiresAuth  bool
	RequiresAdmin bool
	IsLogin       bool // the login page itself
}

// Guard decides whether st may navigate to r. Logged-in users are sent away
// from the login page.
func Guard(st State, r Route) Decision {
	if !st.Initialized {
		return Pending
	}
	if r.RequiresAuth && !st.IsLoggedIn() {
		return RedirectLogin
	}
	if r.RequiresAdmin && !st.IsAdmin() {
		return RedirectHome
	}
	if r.IsLogin && st.IsLoggedIn() {
		return RedirectHome
	}
	return Allow
}
