// Command seed creates the staff accounts that cannot be registered through
// the API: officers (unapproved unless --approved is given) and admins.
//
// Usage: go run ./scripts/seed --role officer --badge OFFICER123
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/models"
)

type options struct {
	role       string
	name       string
	email      string
	password   string
	phone      string
	badge      string
	department string
	approved   bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flagSet.StringVar(&opts.role, "role", "officer", "account role: officer or admin")
	flagSet.StringVar(&opts.name, "name", "", "display name")
	flagSet.StringVar(&opts.email, "email", "", "login email")
	flagSet.StringVar(&opts.password, "password", "", "login password")
	flagSet.StringVar(&opts.phone, "phone", "", "contact phone")
	flagSet.StringVar(&opts.badge, "badge", "OFFICER123", "badge id (officers only)")
	flagSet.StringVar(&opts.department, "department", "", "department (defaults to Headquarters for admins)")
	flagSet.BoolVar(&opts.approved, "approved", false, "approve the officer right away")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	user, password, err := opts.user()
	if err != nil {
		return err
	}

	conf := config.New()
	client, err := databases.NewClient(conf)
	if err != nil {
		return fmt.Errorf("failed to create database client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer client.Disconnect(context.Background())

	users := databases.NewUserDatabase(databases.NewDatabase(conf, client))
	if err := users.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return seed(ctx, users, user, password)
}

// user builds the account described by the flags. The returned password is
// the plain text one, for the summary printed at the end.
func (o options) user() (*models.User, string, error) {
	role := models.Role(strings.ToLower(o.role))
	u := &models.User{Role: role, Phone: o.phone, Department: o.department}
	password := o.password

	switch role {
	case models.RoleOfficer:
		u.Name = orDefault(o.name, "Inspector Vijay")
		u.Email = orDefault(o.email, "vijay@police.gov.in")
		u.Phone = orDefault(o.phone, "9876543210")
		u.BadgeID = strings.TrimSpace(o.badge)
		u.IsApproved = o.approved
		password = orDefault(password, "police123")
		if u.BadgeID == "" {
			return nil, "", errors.New("officers need a --badge")
		}
	case models.RoleAdmin:
		u.Name = orDefault(o.name, "System Admin")
		u.Email = orDefault(o.email, "admin@fir.gov.in")
		u.Phone = orDefault(o.phone, "9999999999")
		u.Department = orDefault(o.department, "Headquarters")
		u.IsApproved = true
		password = orDefault(password, "admin123")
	default:
		return nil, "", fmt.Errorf("unsupported role %q, use officer or admin", o.role)
	}
	u.Email = strings.ToLower(u.Email)
	return u, password, nil
}

// seed inserts user unless an account with the same badge (officers) or
// email (admins) already exists
func seed(ctx context.Context, users databases.UserDatabase, user *models.User, password string) error {
	var existing *models.User
	var err error
	if user.Role == models.RoleOfficer {
		existing, err = users.FindByBadgeID(ctx, user.BadgeID)
	} else {
		existing, err = users.FindByEmail(ctx, user.Email)
	}
	if err == nil {
		zap.S().Infow("account already exists", "id", existing.ID.Hex(), "role", existing.Role)
		return nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to look up account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), config.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hash)
	if err := users.InsertOne(ctx, user); err != nil {
		if errors.Is(err, databases.ErrDuplicateKey) {
			return fmt.Errorf("email %s is already taken", user.Email)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	zap.S().Infow("account created",
		"id", user.ID.Hex(),
		"role", user.Role,
		"email", user.Email,
		"badgeId", user.BadgeID,
		"approved", user.IsApproved)
	return nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
