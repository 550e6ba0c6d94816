package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"digidiary/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

type userDocument struct {
	Rev string `json:"_rev,omitempty"`
	*domain.User
}

type userRepository struct {
	client *kivik.Client
	dbName string
}

func NewUserRepository(client *kivik.Client, dbName string) UserRepository {
	return &userRepository{
		client: client,
		dbName: dbName,
	}
}

func userDocID(id string) string {
	return "user:" + id
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	db := r.client.DB(r.dbName)

	_, err := db.Put(ctx, userDocID(user.ID), user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepository) findOne(ctx context.Context, field, value string) (*domain.User, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			field: value,
		},
		"limit": 1,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query user by %s: %w", field, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("user %w", domain.ErrNotFound)
	}

	var user domain.User
	if err := rows.ScanDoc(&user); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, userDocID(id))

	var user domain.User
	if err := row.ScanDoc(&user); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("user %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	db := r.client.DB(r.dbName)
	docID := userDocID(user.ID)

	var existing struct {
		Rev string `json:"_rev"`
	}
	if err := db.Get(ctx, docID).ScanDoc(&existing); err != nil {
		return fmt.Errorf("failed to fetch existing user for update: %w", err)
	}

	_, err := db.Put(ctx, docID, userDocument{Rev: existing.Rev, User: user})
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
