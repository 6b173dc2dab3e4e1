package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/IYouKnow/TunnelUI/internal/auth"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/systemd"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

// commands are the admin subcommands handled before the server starts.
var commands = map[string]func(args []string) error{
	"create-user":    createUser,
	"reset-password": resetPassword,
	"unit":           printUnit,
}

func credentialFlags(name string, args []string) (email, password string, err error) {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&email, "email", "", "user email")
	flagSet.StringVar(&password, "password", "", "user password")
	if err := flagSet.Parse(args); err != nil {
		return "", "", err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", "", fmt.Errorf("usage: tunnelui %s --email <email> --password <password>", name)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return "", "", err
	}
	return email, password, nil
}

func openDatabase() (func(), error) {
	config.Load()
	if err := database.Init(); err != nil {
		return nil, fmt.Errorf("database init: %w", err)
	}
	return func() { database.Close() }, nil
}

func createUser(args []string) error {
	email, password, err := credentialFlags("create-user", args)
	if err != nil {
		return err
	}
	closeDB, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	if _, err := database.GetUserByEmail(email); err == nil {
		return fmt.Errorf("user %s already exists", email)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := database.CreateUser(&database.User{Email: email, PasswordHash: hash}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Printf("User '%s' created successfully.\n", email)
	return nil
}

func resetPassword(args []string) error {
	email, password, err := credentialFlags("reset-password", args)
	if err != nil {
		return err
	}
	closeDB, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	user, err := database.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("user %s not found", email)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := database.UpdateUserPassword(user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	fmt.Printf("Password reset for '%s'. Note: existing sessions will expire within 1 hour.\n", email)
	return nil
}

// printUnit writes a unit definition to stdout without touching systemd.
func printUnit(args []string) error {
	flagSet := pflag.NewFlagSet("unit", pflag.ContinueOnError)
	tunnelID := flagSet.String("tunnel-id", "", "tunnel identifier")
	configPath := flagSet.String("config", "", "path of the ingress config file")
	user := flagSet.String("user", "root", "service user")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *tunnelID == "" || *configPath == "" {
		return errors.New("usage: tunnelui unit --tunnel-id <id> --config <path> [--user <user>]")
	}
	if _, err := uuid.Parse(*tunnelID); err != nil {
		return fmt.Errorf("invalid tunnel id %q", *tunnelID)
	}
	fmt.Print(systemd.GenerateUnit(*tunnelID, *user, *configPath))
	return nil
}
