package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/imissapixel/ai-media-gen/internal/infra"
)

const (
	bcryptCost = 12

	// placeholderPassword is the value shipped in .env.example; it must never
	// be accepted as a real credential.
	placeholderPassword = "your_secure_password_here"
)

// ErrMissingCredential indicates that neither a stored hash nor a usable
// plaintext password is available. Startup must halt on this error.
var ErrMissingCredential = errors.New("credentials: no PASSWORD_HASH configured and ACCESS_PASSWORD is not set")

// Store holds the single active credential hash guarding the app.
type Store struct {
	hash []byte
}

// Initialize loads the stored password hash, or derives one from the
// plaintext access password and persists it to the env file. The rewrite
// adds PASSWORD_HASH and removes ACCESS_PASSWORD in a single write, so the
// plaintext never coexists with the hash in persisted configuration.
func Initialize(cfg *infra.Config, logger infra.Logger) (*Store, error) {
	if hash := strings.TrimSpace(cfg.PasswordHash); hash != "" {
		logger.Info().Msg("credentials: using stored password hash")
		return &Store{hash: []byte(hash)}, nil
	}

	plain := cfg.AccessPassword
	if plain == "" || plain == placeholderPassword {
		return nil, ErrMissingCredential
	}

	logger.Info().Msg("credentials: generating password hash")
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credentials: derive hash: %w", err)
	}
	if err := persistHash(cfg.EnvFile, string(hash)); err != nil {
		return nil, err
	}
	cfg.PasswordHash = string(hash)
	cfg.AccessPassword = ""
	logger.Info().Str("env_file", cfg.EnvFile).Msg("credentials: hash saved, plaintext removed from env file")

	return &Store{hash: hash}, nil
}

func persistHash(envFile, hash string) error {
	vars, err := godotenv.Read(envFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("credentials: read %s: %w", envFile, err)
		}
		vars = map[string]string{}
	}
	vars["PASSWORD_HASH"] = hash
	delete(vars, "ACCESS_PASSWORD")
	if err := godotenv.Write(vars, envFile); err != nil {
		return fmt.Errorf("credentials: write %s: %w", envFile, err)
	}
	return nil
}

// Hash returns the active bcrypt hash.
func (s *Store) Hash() string {
	return string(s.hash)
}

// Verify reports whether the candidate password matches the stored hash.
// bcrypt comparison is constant time with respect to the password.
func (s *Store) Verify(password string) bool {
	return bcrypt.CompareHashAndPassword(s.hash, []byte(password)) == nil
}
