// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package session

import (
	"testing"

	"peablog/internal/models"
)

func TestGuard(t *testing.T) {
	reader := &models.User{ID: 2, Username: "reader", Role: models.RoleUser}
	admin := &models.User{ID: 1, Username: "admin", Role: models.RoleAdmin}

	booting := State{}
	anon := State{Initialized: true}
	user := State{Initialized: true, Token: "t", User: reader}
	adm := State{Initialized: true, Token: "t", User: admin}
	tokenOnly := State{Initialized: true, Token: "t"}

	public := Route{}
	private := Route{RequiresAuth: true}
	adminOnly := Route{RequiresAuth: true, RequiresAdmin: true}
	login := Route{IsLogin: true}

	tests := []struct {
		name  string
		state State
		route Route
		want  Decision
	}{
		{"not initialized", booting, private, Pending},
		{"not initialized public", booting, public, Pending},
		{"anonymous public", anon, public, Allow},
		{"anonymous private", anon, private, RedirectLogin},
		{"anonymous admin", anon, adminOnly, RedirectLogin},
		{"anonymous login page", anon, login, Allow},
		{"token without identity", tokenOnly, private, RedirectLogin},
		{"user private", user, private, Allow},
		{"user admin", user, adminOnly, RedirectHome},
		{"user login page", user, login, RedirectHome},
		{"admin admin", adm, adminOnly, Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Guard(tt.state, tt.route); got != tt.want {
				t.Errorf("Guard() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecisionString(t *testing.T) {
	for d, want := range map[Decision]string{
		Pending:       "pending",
		Allow:         "allow",
		RedirectLogin: "redirect_login",
		RedirectHome:  "redirect_home",
	} {
		if got := d.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", d, got, want)
		}
	}
}
