package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatherlyAPI/internal/apperrors"
	"gatherlyAPI/internal/types/notification"
	"gatherlyAPI/internal/types/user"
)

type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	u := &user.User{
		ClerkID:   req.ClerkID,
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ImageURL:  req.ImageURL,
	}

	query := `
	INSERT INTO users (clerk_id, email, username, first_name, last_name, image_url, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	ON CONFLICT (clerk_id) DO UPDATE SET
		email = EXCLUDED.email,
		username = EXCLUDED.username,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		image_url = EXCLUDED.image_url,
		updated_at = NOW()
	RETURNING id, email_verified, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		u.ClerkID, u.Email, u.Username, u.FirstName, u.LastName, u.ImageURL,
	).Scan(&u.ID, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	query := `
	SELECT id, clerk_id, email, username, first_name, last_name, COALESCE(image_url, ''), email_verified, created_at, updated_at
	FROM users
	WHERE clerk_id = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, clerkID).Scan(
		&u.ID, &u.ClerkID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		&u.ImageURL, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*user.User, error) {
	query := `
	SELECT id, clerk_id, email, username, first_name, last_name, COALESCE(image_url, ''), email_verified, created_at, updated_at
	FROM users
	WHERE id = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.ClerkID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		&u.ImageURL, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}

	return u, nil
}

// ResolveClerkID maps the authenticated Clerk identity onto the internal
// numeric id every other service keys on.
func (s *UserService) ResolveClerkID(ctx context.Context, clerkID string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperrors.NotFound("user")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve clerk id: %w", err)
	}
	return id, nil
}

func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		log.Printf("DeleteUserByClerkID: no user found for clerk id %s", clerkID)
	}
	return nil
}

// SearchUsers matches usernames by prefix, then substring, excluding the
// searching user and anyone in a block relationship with them.
func (s *UserService) SearchUsers(ctx context.Context, userID int64, term string, limit int) ([]*user.Summary, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []*user.Summary{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	rows, err := s.db.Query(ctx, `
		SELECT u.id, u.username, COALESCE(u.image_url, '')
		FROM users u
		WHERE u.username ILIKE '%' || $2 || '%'
		  AND u.id != $1
		  AND NOT EXISTS (
			SELECT 1 FROM blocks b
			WHERE (b.blocker_id = $1 AND b.blocked_id = u.id)
			   OR (b.blocker_id = u.id AND b.blocked_id = $1)
		  )
		ORDER BY (u.username ILIKE $2 || '%') DESC, u.username
		LIMIT $3
	`, userID, term, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	results := make([]*user.Summary, 0)
	for rows.Next() {
		u := &user.Summary{}
		if err := rows.Scan(&u.ID, &u.Username, &u.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// RegisterDevice stores a push token for the user. Re-registering the same
// token moves it to the current user, so a shared device follows whoever
// logged in last.
func (s *UserService) RegisterDevice(ctx context.Context, userID int64, token, platform string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.NewValidationError(map[string]string{"token": "device token is required"})
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform
	`, userID, token, platform)
	if err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

func (s *UserService) RemoveDevice(ctx context.Context, userID int64, token string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM device_tokens WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		return fmt.Errorf("failed to remove device token: %w", err)
	}
	return nil
}

// DeviceTokens implements DeviceTokenSource for the push dispatcher.
func (s *UserService) DeviceTokens(ctx context.Context, userID int64) ([]notification.DeviceToken, error) {
	rows, err := s.db.Query(ctx,
		`SELECT token, COALESCE(platform, '') FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device tokens for user %d: %w", userID, err)
	}
	defer rows.Close()

	tokens := make([]notification.DeviceToken, 0)
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.Token, &t.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// TouchLastSeen records activity for rough "last online" display. Failures
// are logged, never surfaced.
func (s *UserService) TouchLastSeen(ctx context.Context, userID int64) {
	_, err := s.db.Exec(ctx,
		`UPDATE users SET last_seen_at = $2 WHERE id = $1`, userID, time.Now())
	if err != nil {
		log.Printf("TouchLastSeen: failed for user %d: %v", userID, err)
	}
}
