package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/feature-board/internal/model"
	"github.com/sakif/feature-board/internal/repository"
)

// AuthorService resolves the author behind an email address.
//
// There is no sign-up step. The first time an address submits or votes, a
// row is created for it; every later call returns that same row.
type AuthorService struct {
	repo     repository.AuthorRepository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAuthorService(repo repository.AuthorRepository, logger *slog.Logger) *AuthorService {
	return &AuthorService{
		repo:     repo,
		validate: newValidator(),
		logger:   logger,
	}
}

type resolveInput struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// Resolve normalizes email and returns its author, creating one if needed.
func (s *AuthorService) Resolve(ctx context.Context, email string) (*model.Author, error) {
	in := resolveInput{Email: normalizeEmail(email)}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	author, err := s.repo.FindOrCreateAuthor(ctx, in.Email)
	if err != nil {
		s.logger.Error("failed to resolve author",
			slog.String("email", in.Email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("resolving author: %w", err)
	}

	return author, nil
}
