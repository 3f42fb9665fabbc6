// Command sams runs the Session & Attendance service and its admin tasks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sams/internal/app"
	"sams/internal/auth"
	"sams/internal/config"
	"sams/internal/database"
	"sams/pkg/interfaces"
	"sams/pkg/types"
)

const usage = `usage: sams <command> [flags]

commands:
  serve      run the HTTP and WebSocket server
  register   create a Student or Lecturer account
  token      issue a bearer token after checking email and password
  hall       add a lecture hall`

var errUsage = errors.New(usage)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

// run dispatches a subcommand; it is separate from main for testing
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "register":
		return register(ctx, args[1:], stdout)
	case "token":
		return issueToken(ctx, args[1:], stdout)
	case "hall":
		return addHall(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

// commonFlags registers the config file flags shared by every subcommand
func commonFlags(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "JSON config file (defaults to $"+config.ConfigFileEnv+")")
	envFile := fs.String("env", ".env", "dotenv file loaded before the environment")
	return fs, configPath, envFile
}

func loadConfig(configPath, envFile string) (*config.Config, error) {
	cfg, err := config.LoadConfigWithPrecedence(configPath, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the database for one-shot admin commands
func openStore(cfg *config.Config) (*database.Manager, error) {
	dbManager, err := database.NewManager(app.DatabaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return dbManager, nil
}

func serve(ctx context.Context, args []string) error {
	fs, configPath, envFile := commonFlags("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return application.Run(ctx)
}

func register(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath, envFile := commonFlags("register")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "login email")
	password := fs.String("password", "", "password (at least 8 characters)")
	role := fs.String("role", types.RoleStudent, "Student or Lecturer")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*name) == "" || strings.TrimSpace(*email) == "" {
		return fmt.Errorf("-name and -email are required")
	}
	if !types.IsValidRole(*role) {
		return fmt.Errorf("-role must be %s or %s", types.RoleStudent, types.RoleLecturer)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		return err
	}
	dbManager, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	user := &types.User{Name: strings.TrimSpace(*name), Email: strings.TrimSpace(*email), UserType: *role}
	if err := dbManager.RegisterUser(ctx, user, hash); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "registered %s %s with user id %d\n", user.UserType, user.Email, user.ID)
	return nil
}

func issueToken(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath, envFile := commonFlags("token")
	email := fs.String("email", "", "login email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		return fmt.Errorf("-email and -password are required")
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		return err
	}
	dbManager, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	user, hash, err := dbManager.GetUserCredentials(ctx, strings.TrimSpace(*email))
	if errors.Is(err, interfaces.ErrUserNotFound) {
		return auth.ErrInvalidPassword
	}
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(hash, *password); err != nil {
		log.Printf("Token refused: email=%s user_id=%d", user.Email, user.ID)
		return err
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	token, _, err := tokens.Issue(user)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, token)
	return nil
}

func addHall(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath, envFile := commonFlags("hall")
	hall := &types.LectureHall{}
	fs.StringVar(&hall.Name, "name", "", "hall name")
	fs.Float64Var(&hall.MinLatitude, "min-lat", 0, "bounding box minimum latitude")
	fs.Float64Var(&hall.MaxLatitude, "max-lat", 0, "bounding box maximum latitude")
	fs.Float64Var(&hall.MinLongitude, "min-lon", 0, "bounding box minimum longitude")
	fs.Float64Var(&hall.MaxLongitude, "max-lon", 0, "bounding box maximum longitude")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(hall.Name) == "" {
		return fmt.Errorf("-name is required")
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		return err
	}
	dbManager, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	if err := dbManager.CreateLectureHall(ctx, hall); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "added lecture hall %q with id %d\n", hall.Name, hall.ID)
	return nil
}
