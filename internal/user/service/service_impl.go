package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	userdomain "github.com/hostlify/hostlify/internal/user/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"github.com/hostlify/hostlify/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Repo   userdomain.Repository
	Wallet walletdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	currency string
	repo     userdomain.Repository
	wallet   walletdomain.Service
}

func NewService(p Params) userdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("user.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		currency: p.Config.Currency,
		repo:     p.Repo,
		wallet:   p.Wallet,
	}
}

func (s *Service) Register(ctx context.Context, email, password string) (*userdomain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < minPasswordLength {
		return nil, userdomain.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &userdomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, userdomain.ErrEmailTaken
		}
		return nil, err
	}

	// CreateForUser is idempotent, a crashed registration retried later
	// lands on the same wallet.
	if _, err := s.wallet.CreateForUser(ctx, user.ID, s.currency); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.Int64("user_id", int64(user.ID)))
	return user, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*userdomain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Burn a comparison anyway so missing accounts are not
		// distinguishable by timing.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval"), []byte(password))
		return nil, userdomain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, userdomain.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*userdomain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrUserNotFound
	}
	return user, nil
}
