package commands

import (
	"context"
	"fmt"

	"github.com/fieldsense/waterline/internal/authapi"
)

type SignupCmd struct {
	ClientFlags `embed:""`

	Email      string `help:"Account email" required:""`
	Password   string `help:"Account password" required:"" env:"WATERLINE_PASSWORD"`
	GivenName  string `help:"Given name" required:""`
	FamilyName string `help:"Family name" required:""`
}

func (s *SignupCmd) Run(ctx context.Context, globals *Globals) error {
	mgr, _, err := s.manager()
	if err != nil {
		return err
	}

	resp, err := mgr.SignUp(ctx, authapi.SignUpRequest{
		Email:      s.Email,
		Password:   s.Password,
		GivenName:  s.GivenName,
		FamilyName: s.FamilyName,
	})
	if err != nil {
		st := mgr.Store().State()
		if st.Err != "" {
			return fmt.Errorf("signup failed: %s", st.Err)
		}
		return describeError(err)
	}

	fmt.Printf("Registered %s (user id %s)\n", resp.Email, resp.UserID)
	if resp.ConfirmationRequired {
		fmt.Println("Check your email for a confirmation code, then run:")
		fmt.Printf("  waterline-cli confirm --email %s --code <CODE>\n", resp.Email)
	}

	return nil
}

type ConfirmCmd struct {
	ClientFlags `embed:""`

	Email string `help:"Account email" required:""`
	Code  string `help:"Confirmation code" required:""`
}

func (c *ConfirmCmd) Run(ctx context.Context, globals *Globals) error {
	mgr, _, err := c.manager()
	if err != nil {
		return err
	}

	if err := mgr.ConfirmSignUp(ctx, c.Email, c.Code); err != nil {
		st := mgr.Store().State()
		if st.Err != "" {
			return fmt.Errorf("confirmation failed: %s", st.Err)
		}
		return describeError(err)
	}

	fmt.Println("Account confirmed. You can now log in.")
	return nil
}
