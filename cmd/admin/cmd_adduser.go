package main

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/EcoWatch/EcoWatch-Backend/internal/app"
	"github.com/EcoWatch/EcoWatch-Backend/internal/auth"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

type newUser struct {
	Username     string
	Email        string
	Password     string
	Role         string
	Name         string
	Organization string
	Phone        string
}

var addUserOpts newUser

// addUserCmd provisions staff accounts; public registration only creates
// citizens.
var addUserCmd = &cobra.Command{
	Use:   "adduser",
	Short: "Create a user with any role",
	Example: `  admin adduser --username ops1 --email ops@city.gov --role coordinator --password 'long secret'
  admin adduser --username fd2 --email fd2@city.gov --role agency --org "Fire Department" --password 'long secret'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		store, closeStore, err := app.OpenStore(cfg, log)
		if err != nil {
			return err
		}
		defer closeStore()

		u, err := addUser(cmd.Context(), store, addUserOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", u.Role, u.Username, u.ID)
		return nil
	},
}

func init() {
	f := addUserCmd.Flags()
	f.StringVar(&addUserOpts.Username, "username", "", "login name (required)")
	f.StringVar(&addUserOpts.Email, "email", "", "email address (required)")
	f.StringVar(&addUserOpts.Password, "password", "", "initial password (required)")
	f.StringVar(&addUserOpts.Role, "role", "citizen", "citizen, coordinator or agency")
	f.StringVar(&addUserOpts.Name, "name", "", "display name (defaults to the username)")
	f.StringVar(&addUserOpts.Organization, "org", "", "organization; required for agency users")
	f.StringVar(&addUserOpts.Phone, "phone", "", "phone number")
	_ = addUserCmd.MarkFlagRequired("username")
	_ = addUserCmd.MarkFlagRequired("email")
	_ = addUserCmd.MarkFlagRequired("password")
}

func addUser(ctx context.Context, store storage.Store, in newUser) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := auth.CheckUsername(in.Username); err != nil {
		return models.User{}, err
	}
	role, ok := models.ParseRole(in.Role)
	if !ok {
		return models.User{}, fmt.Errorf("unknown role %q", in.Role)
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, fmt.Errorf("invalid email %q", in.Email)
	}
	if len(in.Password) < auth.MinPasswordLen {
		return models.User{}, fmt.Errorf("password must be at least %d characters", auth.MinPasswordLen)
	}
	if role == models.RoleAgency && in.Organization == "" {
		return models.User{}, fmt.Errorf("agency users need --org")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := models.User{
		Username:       in.Username,
		HashedPassword: string(hashed),
		Email:          email,
		Role:           role,
		Name:           in.Name,
	}
	if u.Name == "" {
		u.Name = u.Username
	}
	if in.Organization != "" {
		u.Organization = &in.Organization
	}
	if in.Phone != "" {
		u.Phone = &in.Phone
	}

	created, err := store.CreateUser(ctx, u)
	if err != nil {
		return models.User{}, fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return created, nil
}
