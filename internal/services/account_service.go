package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

const maxFullNameLength = 100

var (
	// ErrAccountInvalidInput signals invalid registration data.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates no account is linked to the identity.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountConflict indicates the phone number already belongs to another identity.
	ErrAccountConflict = errors.New("account: conflict")
)

// AccountServiceDeps bundles collaborators required to construct the account service.
type AccountServiceDeps struct {
	Accounts    repositories.AccountRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	accounts repositories.AccountRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account service: account repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &accountService{
		accounts: deps.Accounts,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// Register is get-or-create keyed by the Firebase UID: a second call returns the stored account
// untouched.
func (s *accountService) Register(ctx context.Context, cmd RegisterAccountCommand) (Account, bool, error) {
	uid := strings.TrimSpace(cmd.FirebaseUID)
	if uid == "" {
		return Account{}, false, fmt.Errorf("%w: firebase uid is required", ErrAccountInvalidInput)
	}
	existing, err := s.accounts.FindByFirebaseUID(ctx, uid)
	if err == nil {
		return existing, false, nil
	}
	if !repositories.IsNotFound(err) {
		return Account{}, false, mapAccountError(err)
	}

	account := Account{
		ID:          s.newID(),
		FirebaseUID: uid,
		PhoneNumber: strings.TrimSpace(cmd.PhoneNumber),
		Email:       strings.ToLower(strings.TrimSpace(cmd.Email)),
		FullName:    sanitizeText(cmd.FullName),
		UserType:    domain.UserType(strings.ToLower(strings.TrimSpace(string(cmd.UserType)))),
		IsActive:    true,
	}
	var problems []string
	if account.PhoneNumber == "" {
		problems = append(problems, "phone_number is required")
	} else if !validPhone(account.PhoneNumber) {
		problems = append(problems, "Invalid phone number")
	}
	switch n := len([]rune(account.FullName)); {
	case n == 0:
		problems = append(problems, "full_name is required")
	case n > maxFullNameLength:
		problems = append(problems, fmt.Sprintf("full_name must be at most %d characters", maxFullNameLength))
	}
	if !account.UserType.Valid() {
		problems = append(problems, "user_type must be seller or customer")
	}
	if len(problems) > 0 {
		return Account{}, false, fmt.Errorf("%w: %s", ErrAccountInvalidInput, strings.Join(problems, "; "))
	}

	now := s.clock()
	account.CreatedAt = now
	account.UpdatedAt = now
	if err := s.accounts.Insert(ctx, account); err != nil {
		if repositories.IsDuplicate(err) {
			// A concurrent registration for the same uid won the insert.
			if stored, findErr := s.accounts.FindByFirebaseUID(ctx, uid); findErr == nil {
				return stored, false, nil
			}
			return Account{}, false, fmt.Errorf("%w: phone number already registered", ErrAccountConflict)
		}
		return Account{}, false, mapAccountError(err)
	}
	s.logger(ctx, "account.registered", map[string]any{
		"accountId": account.ID,
		"userType":  string(account.UserType),
	})
	return account, true, nil
}

func (s *accountService) Me(ctx context.Context, firebaseUID string) (Account, error) {
	uid := strings.TrimSpace(firebaseUID)
	if uid == "" {
		return Account{}, fmt.Errorf("%w: firebase uid is required", ErrAccountInvalidInput)
	}
	account, err := s.accounts.FindByFirebaseUID(ctx, uid)
	if err != nil {
		return Account{}, mapAccountError(err)
	}
	return account, nil
}

func mapAccountError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrAccountConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("account: repository unavailable: %w", err)
		}
	}
	return err
}
