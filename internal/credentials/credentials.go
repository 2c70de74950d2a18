// Package credentials manages API credentials persisted to a dotenv file.
package credentials

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/guardrail/guardrail/internal/models"
)

// OpenAIKeyVar is the environment variable holding the OpenAI API key.
const OpenAIKeyVar = "OPENAI_API_KEY"

// Store reads and writes API credentials in a dotenv file. Updates go to
// disk so keys survive restarts.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a credential store backed by the dotenv file at path.
func NewStore(path string) *Store {
	if path == "" {
		path = ".env"
	}
	return &Store{path: path}
}

// OpenAIKey returns the stored OpenAI API key. The process environment
// takes precedence over the dotenv file.
func (s *Store) OpenAIKey() string {
	if key := os.Getenv(OpenAIKeyVar); key != "" {
		return key
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vars, err := godotenv.Read(s.path)
	if err != nil {
		return ""
	}
	return vars[OpenAIKeyVar]
}

// SetOpenAIKey validates and persists a new OpenAI API key. Existing
// variables in the file are preserved.
func (s *Store) SetOpenAIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.ErrEmptyAPIKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vars, err := godotenv.Read(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read credentials file: %w", err)
		}
		vars = make(map[string]string)
	}

	vars[OpenAIKeyVar] = key
	if err := godotenv.Write(vars, s.path); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}

	return nil
}

// Mask returns a redacted rendering of a credential safe for logs.
func Mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}
