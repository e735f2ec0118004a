package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

type LoginCmd struct {
	ClientFlags `embed:""`

	Email    string `help:"Account email" required:""`
	Password string `help:"Account password (prompted when omitted)" env:"WATERLINE_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password := l.Password
	if password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	mgr, _, err := l.manager()
	if err != nil {
		return err
	}

	if err := mgr.Login(ctx, l.Email, password); err != nil {
		st := mgr.Store().State()
		if st.Err != "" {
			return fmt.Errorf("login failed: %s", st.Err)
		}
		return describeError(err)
	}

	st := mgr.Store().State()
	fmt.Printf("Logged in as %s\n", st.User.Email)

	return nil
}

type LogoutCmd struct {
	ClientFlags `embed:""`
}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	mgr, _, err := l.manager()
	if err != nil {
		return err
	}

	mgr.Initialize(ctx)
	mgr.Logout(ctx)

	fmt.Println("Logged out.")
	return nil
}
