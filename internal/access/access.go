// Package access validates raw access tokens and decides what a caller may do
// with a folder. Raw tokens are never stored; records are keyed by the sha256
// hex digest of the token string.
package access

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/FolderDrop/internal/common"
	"github.com/dharsanguruparan/FolderDrop/internal/model"
)

const (
	issuedTokenTTL      = 10 * time.Minute
	issueWindow         = 20 * time.Minute
	issueLimitPerIP     = 3
	issueCollisionTries = 5
)

// TokenStore is the subset of the metadata store the access service needs.
type TokenStore interface {
	CreateToken(ctx context.Context, token *model.Token) error
	GetToken(ctx context.Context, id string) (*model.Token, error)
	GetTokenByHash(ctx context.Context, hash string) (*model.Token, error)
	ListTokens(ctx context.Context) ([]model.Token, error)
	UpdateToken(ctx context.Context, token *model.Token) error
	IncrementTokenUses(ctx context.Context, id string) error
	CountTokensSince(ctx context.Context, ip string, since time.Time) (int, error)
	DeleteToken(ctx context.Context, id string) error
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error)
}

// Grant is the validated view of a token.
type Grant struct {
	TokenID        string
	Hash           string
	Name           string
	Purpose        string
	Permission     model.Permission
	AllowedFolders []string
	MaxUploadSize  *int64
	Master         bool
}

// Service validates and issues tokens.
type Service struct {
	store      TokenStore
	masterHash string
	now        func() time.Time
	logger     *slog.Logger
}

// NewService constructs a Service. masterHash is the sha256 hex of the admin
// token; an empty value disables master access.
func NewService(store TokenStore, masterHash string, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		masterHash: strings.ToLower(masterHash),
		now:        time.Now,
		logger:     logger.With(slog.String("component", "access")),
	}
}

// HashToken returns the lowercase sha256 hex digest of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Validate resolves a raw token into a Grant.
func (s *Service) Validate(ctx context.Context, raw string) (*Grant, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, common.ErrInvalidToken
	}
	hash := HashToken(raw)
	if s.masterHash != "" && subtle.ConstantTimeCompare([]byte(hash), []byte(s.masterHash)) == 1 {
		return &Grant{Hash: hash, Name: "master", Permission: model.PermBoth, Master: true}, nil
	}
	tok, err := s.store.GetTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if !tok.ExpiresAt.IsZero() && s.now().After(tok.ExpiresAt) {
		return nil, common.ErrTokenExpired
	}
	if tok.MaxUses > 0 && tok.Uses >= tok.MaxUses {
		return nil, common.ErrTokenExhausted
	}
	return &Grant{
		TokenID:        tok.ID,
		Hash:           hash,
		Name:           tok.Name,
		Purpose:        tok.Purpose,
		Permission:     tok.Permission,
		AllowedFolders: tok.AllowedFolders,
		MaxUploadSize:  tok.MaxUploadSize,
	}, nil
}

// AuthorizeFolder validates raw and checks that it may perform perm on
// folderID. Master grants bypass the scope check. Scope violations are
// reported as common.ErrAccessDenied whichever check failed.
func (s *Service) AuthorizeFolder(ctx context.Context, raw, folderID string, perm model.Permission) (*Grant, error) {
	g, err := s.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if g.Master {
		return g, nil
	}
	if !g.Permission.Allows(perm) {
		return nil, common.ErrAccessDenied
	}
	if !slices.Contains(g.AllowedFolders, folderID) {
		return nil, common.ErrAccessDenied
	}
	return g, nil
}

// RequireMaster succeeds only for the master token.
func (s *Service) RequireMaster(ctx context.Context, raw string) (*Grant, error) {
	g, err := s.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !g.Master {
		return nil, common.ErrAccessDenied
	}
	return g, nil
}

// RecordUse counts one use against a non-master grant.
func (s *Service) RecordUse(ctx context.Context, g *Grant) error {
	if g.Master || g.TokenID == "" {
		return nil
	}
	if err := s.store.IncrementTokenUses(ctx, g.TokenID); err != nil {
		return fmt.Errorf("record token use: %w", err)
	}
	return nil
}

// Issue mints a single-use six digit upload token for a visitor. Each IP may
// request a limited number of tokens per window.
func (s *Service) Issue(ctx context.Context, name, purpose, ip string) (string, *model.Token, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("name is required: %w", common.ErrInvalidArgument)
	}
	now := s.now().UTC()
	n, err := s.store.CountTokensSince(ctx, ip, now.Add(-issueWindow))
	if err != nil {
		return "", nil, err
	}
	if n >= issueLimitPerIP {
		return "", nil, common.ErrRateLimited
	}
	for i := 0; i < issueCollisionTries; i++ {
		raw, err := sixDigits()
		if err != nil {
			return "", nil, err
		}
		tok := &model.Token{
			ID:         uuid.NewString(),
			Hash:       HashToken(raw),
			Name:       name,
			Purpose:    strings.TrimSpace(purpose),
			CreatedAt:  now,
			ExpiresAt:  now.Add(issuedTokenTTL),
			MaxUses:    1,
			IPAddress:  ip,
			Permission: model.PermUpload,
		}
		err = s.store.CreateToken(ctx, tok)
		if errors.Is(err, common.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		s.logger.Info("token issued", slog.String("token_id", tok.ID), slog.String("ip", ip))
		return raw, tok, nil
	}
	return "", nil, fmt.Errorf("issue token: exhausted %d attempts", issueCollisionTries)
}

// CustomToken describes an admin-defined token.
type CustomToken struct {
	Token          string
	Name           string
	ExpiresIn      time.Duration
	MaxUses        int
	Permission     model.Permission
	AllowedFolders []string
	MaxUploadSize  *int64
}

// CreateCustom stores an admin-defined token. Reusing an existing token string
// fails with common.ErrAlreadyExists.
func (s *Service) CreateCustom(ctx context.Context, in CustomToken) (*model.Token, error) {
	raw := strings.TrimSpace(in.Token)
	switch {
	case raw == "":
		return nil, fmt.Errorf("token is required: %w", common.ErrInvalidArgument)
	case in.ExpiresIn <= 0:
		return nil, fmt.Errorf("expiry must be positive: %w", common.ErrInvalidArgument)
	case in.MaxUses <= 0:
		return nil, fmt.Errorf("max uses must be positive: %w", common.ErrInvalidArgument)
	case !in.Permission.Valid():
		return nil, fmt.Errorf("unknown permission %q: %w", in.Permission, common.ErrInvalidArgument)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "custom"
	}
	now := s.now().UTC()
	tok := &model.Token{
		ID:             uuid.NewString(),
		Hash:           HashToken(raw),
		Name:           name,
		Purpose:        "custom",
		CreatedAt:      now,
		ExpiresAt:      now.Add(in.ExpiresIn),
		MaxUses:        in.MaxUses,
		Permission:     in.Permission,
		AllowedFolders: in.AllowedFolders,
		MaxUploadSize:  in.MaxUploadSize,
	}
	if err := s.store.CreateToken(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// ListTokens returns every stored token, newest first.
func (s *Service) ListTokens(ctx context.Context) ([]model.Token, error) {
	return s.store.ListTokens(ctx)
}

// DeleteToken revokes a token by id.
func (s *Service) DeleteToken(ctx context.Context, id string) error {
	if err := s.store.DeleteToken(ctx, id); err != nil {
		return err
	}
	s.logger.Info("token deleted", slog.String("token_id", id))
	return nil
}

// AssignFolder adds folderID to a token's scope. Assigning a folder that is
// already in scope changes nothing.
func (s *Service) AssignFolder(ctx context.Context, tokenID, folderID string) (*model.Token, error) {
	return s.changeScope(ctx, tokenID, folderID, true)
}

// RemoveFolder takes folderID out of a token's scope. Removing a folder that
// is not in scope changes nothing.
func (s *Service) RemoveFolder(ctx context.Context, tokenID, folderID string) (*model.Token, error) {
	return s.changeScope(ctx, tokenID, folderID, false)
}

func (s *Service) changeScope(ctx context.Context, tokenID, folderID string, add bool) (*model.Token, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, fmt.Errorf("folder is required: %w", common.ErrInvalidArgument)
	}
	tok, err := s.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if tok.AllowsFolder(folderID) == add {
		return tok, nil
	}
	if add {
		tok.AllowedFolders = append(tok.AllowedFolders, folderID)
	} else {
		tok.AllowedFolders = slices.DeleteFunc(tok.AllowedFolders, func(id string) bool { return id == folderID })
	}
	if err := s.store.UpdateToken(ctx, tok); err != nil {
		return nil, err
	}
	s.logger.Info("token scope changed",
		slog.String("token_id", tokenID), slog.String("folder_id", folderID), slog.Bool("added", add))
	return tok, nil
}

// TokenUpdate carries the token fields an admin may change. Nil fields are
// left as they are.
type TokenUpdate struct {
	Uses      *int
	MaxUses   *int
	ExpiresAt *time.Time
}

// UpdateToken applies an admin edit to a token's counters or expiry.
func (s *Service) UpdateToken(ctx context.Context, id string, in TokenUpdate) (*model.Token, error) {
	switch {
	case in.Uses != nil && *in.Uses < 0:
		return nil, fmt.Errorf("uses must not be negative: %w", common.ErrInvalidArgument)
	case in.MaxUses != nil && *in.MaxUses <= 0:
		return nil, fmt.Errorf("max uses must be positive: %w", common.ErrInvalidArgument)
	}
	tok, err := s.store.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Uses != nil {
		tok.Uses = *in.Uses
	}
	if in.MaxUses != nil {
		tok.MaxUses = *in.MaxUses
	}
	if in.ExpiresAt != nil {
		tok.ExpiresAt = in.ExpiresAt.UTC()
	}
	if err := s.store.UpdateToken(ctx, tok); err != nil {
		return nil, err
	}
	s.logger.Info("token updated", slog.String("token_id", id))
	return tok, nil
}

// PurgeExpired deletes every token whose expiry has passed.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired tokens purged", slog.Int("count", n))
	}
	return n, nil
}

func sixDigits() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
