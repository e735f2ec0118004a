package commands

import (
	"context"
	"fmt"
	"strings"
)

type WhoamiCmd struct {
	ClientFlags `embed:""`
}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	mgr, _, err := w.manager()
	if err != nil {
		return err
	}

	if err := requireSession(ctx, mgr); err != nil {
		return err
	}

	user := mgr.Store().State().User

	fmt.Printf("Email:  %s\n", user.Email)
	if user.GivenName != "" || user.FamilyName != "" {
		fmt.Printf("Name:   %s %s\n", user.GivenName, user.FamilyName)
	}
	fmt.Printf("Sub:    %s\n", user.Sub)
	if len(user.Groups) > 0 {
		fmt.Printf("Groups: %s\n", strings.Join(user.Groups, ", "))
	}

	return nil
}
