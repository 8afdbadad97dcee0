package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/store"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager signs staff in by name and PIN and issues bearer tokens. Staff
// records live in the repository so every instance sees the same accounts.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	staff    StaffStore
}

type StaffStore interface {
	ListStaff(ctx context.Context) ([]domain.StaffMember, error)
	GetStaffByName(ctx context.Context, name string) (*domain.StaffMember, error)
	UpsertStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error)
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Name string `json:"name"`
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, staff StaffStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		staff:    staff,
	}
}

// EnsureAdmin makes sure the configured administrator can sign in with the
// configured PIN, creating the account on first start. Legacy plain-text PINs
// found on other accounts are upgraded to bcrypt on the way.
func (a *AuthManager) EnsureAdmin(ctx context.Context, name string, pin string) error {
	name = strings.TrimSpace(name)
	pin = strings.TrimSpace(pin)
	if name == "" || pin == "" {
		return errors.New("admin name and PIN are required")
	}

	members, err := a.staff.ListStaff(ctx)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member.PINHash == "" || isPasswordHash(member.PINHash) {
			continue
		}
		hashed, err := hashPassword(member.PINHash)
		if err != nil {
			continue
		}
		member.PINHash = hashed
		if _, err := a.staff.UpsertStaff(ctx, member); err != nil {
			log.Warn().Err(err).Str("staff", member.Name).Msg("failed to upgrade legacy PIN")
		}
	}

	existing, err := a.staff.GetStaffByName(ctx, name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hashed, err := hashPassword(pin)
		if err != nil {
			return err
		}
		_, err = a.staff.UpsertStaff(ctx, domain.StaffMember{
			Name:      name,
			Role:      domain.RoleAdmin,
			PINHash:   hashed,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		})
		return err
	case err != nil:
		return err
	}

	if existing.Role == domain.RoleAdmin && existing.Active && verifyPassword(existing.PINHash, pin) {
		return nil
	}
	hashed, err := hashPassword(pin)
	if err != nil {
		return err
	}
	existing.Role = domain.RoleAdmin
	existing.Active = true
	existing.PINHash = hashed
	_, err = a.staff.UpsertStaff(ctx, *existing)
	return err
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	member, err := a.staff.GetStaffByName(ctx, strings.TrimSpace(req.Name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, errInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(member.PINHash, req.PIN) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !member.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(*member, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Name:        member.Name,
		Role:        member.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || strings.TrimSpace(claims.Name) == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{ID: sub, Name: claims.Name, Role: claims.Role}, nil
}

func (a *AuthManager) sign(member domain.StaffMember, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   member.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "venuepos",
		},
		Name: member.Name,
		Role: member.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.StaffMember, error) {
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		return domain.StaffMember{}, fmt.Errorf("name must be at least 2 characters")
	}
	switch req.Role {
	case domain.RoleAdmin, domain.RoleCashier, domain.RoleWaiter:
	default:
		return domain.StaffMember{}, fmt.Errorf("role must be admin, cashier or waiter")
	}
	if !isNumericPIN(req.PIN, 4) {
		return domain.StaffMember{}, fmt.Errorf("PIN must be at least 4 digits")
	}
	if req.DailySalaryCents < 0 {
		return domain.StaffMember{}, domain.ErrInvalidAmount
	}

	if _, err := a.staff.GetStaffByName(ctx, name); err == nil {
		return domain.StaffMember{}, fmt.Errorf("staff name already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.StaffMember{}, err
	}

	hashed, err := hashPassword(req.PIN)
	if err != nil {
		return domain.StaffMember{}, fmt.Errorf("failed to hash PIN")
	}
	created, err := a.staff.UpsertStaff(ctx, domain.StaffMember{
		Name:              name,
		Role:              req.Role,
		PINHash:           hashed,
		Active:            true,
		CommissionEnabled: req.CommissionEnabled,
		SalaryEnabled:     req.SalaryEnabled,
		DailySalaryCents:  req.DailySalaryCents,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return domain.StaffMember{}, err
	}
	return *created, nil
}

func (a *AuthManager) ListStaff(ctx context.Context) ([]domain.StaffMember, error) {
	members, err := a.staff.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i].Name) < strings.ToLower(members[j].Name)
	})
	return members, nil
}

func isNumericPIN(pin string, minLen int) bool {
	pin = strings.TrimSpace(pin)
	if len(pin) < minLen {
		return false
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(strings.TrimSpace(input))) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(password)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
