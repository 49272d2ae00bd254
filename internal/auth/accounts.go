package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	Password2       string `json:"password2"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Validate checks the registration fields.
func (in *RegisterInput) Validate() error {
	var fields models.ValidationError

	username := strings.TrimSpace(in.Username)
	switch {
	case username == "":
		fields.Add("username", "This field may not be blank.")
	case utf8.RuneCountInString(username) > 150:
		fields.Add("username", "Ensure this field has no more than 150 characters.")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			fields.Add("email", "Enter a valid email address.")
		}
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		fields.Add("password", "Ensure this field has at least 6 characters.")
	}

	confirm := in.Password2
	if confirm == "" {
		confirm = in.ConfirmPassword
	}
	if confirm != in.Password {
		fields.Add("password", "Passwords don't match")
	}
	return fields.OrNil()
}

// Accounts registers users and exchanges credentials for access tokens.
type Accounts struct {
	store  store.Store
	tokens *Service
	logger *slog.Logger
}

// NewAccounts creates a new account service.
func NewAccounts(st store.Store, tokens *Service, logger *slog.Logger) *Accounts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accounts{store: st, tokens: tokens, logger: logger}
}

// Register creates a user account.
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	user, err := a.store.Users().Create(ctx, strings.TrimSpace(in.Username), in.Email, in.Password)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, models.NewValidationError("username", "A user with that username already exists.")
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	a.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies credentials and returns a signed access token.
func (a *Accounts) Login(ctx context.Context, username, password string) (string, error) {
	user, err := a.store.Users().Authenticate(ctx, username, password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("authenticating user: %w", err)
	}
	return a.tokens.GenerateToken(user.ID, user.Email)
}

// Me returns the user behind a validated token.
func (a *Accounts) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := a.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NotFound("User not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("reading user: %w", err)
	}
	return user, nil
}
