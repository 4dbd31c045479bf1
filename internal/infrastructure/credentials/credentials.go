// Package credentials resolves provider API keys from the environment.
//
// Keys are looked up in the process environment first and then in an optional
// dotenv file (~/.multiprompt/.env by default). The dotenv file is read, never
// applied to the process environment.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

// EnvStore implements ports.CredentialProvider.
type EnvStore struct {
	config  ports.ConfigProvider
	envFile string
	lookup  func(string) (string, bool)

	once    sync.Once
	dotenv  map[string]string
	loadErr error
}

// NewEnvStore builds a store. envFile may be empty to disable dotenv lookup.
func NewEnvStore(config ports.ConfigProvider, envFile string) *EnvStore {
	return &EnvStore{config: config, envFile: envFile, lookup: os.LookupEnv}
}

// SafeAPIKey never returns an error; failures are reported through UserMessage.
func (s *EnvStore) SafeAPIKey(ctx context.Context, providerID string) domain.CredentialResult {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return domain.CredentialResult{UserMessage: fmt.Sprintf("could not load config: %v", err)}
	}
	// Providers registered without a config entry (offline) declare no key variable.
	settings, ok := cfg.FindProvider(providerID)
	if !ok || !settings.RequiresKey() {
		return domain.CredentialResult{Success: true}
	}

	if key := s.value(settings.AuthEnvVar); key != "" {
		return domain.CredentialResult{Success: true, APIKey: key}
	}

	message := fmt.Sprintf("set %s in the environment or in %s", settings.AuthEnvVar, s.envFile)
	if s.envFile == "" {
		message = fmt.Sprintf("set %s in the environment", settings.AuthEnvVar)
	}
	return domain.CredentialResult{UserMessage: message}
}

// EnvFileError reports a dotenv file that exists but could not be parsed.
func (s *EnvStore) EnvFileError() error {
	s.loadDotenv()
	return s.loadErr
}

func (s *EnvStore) value(name string) string {
	if value, ok := s.lookup(name); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	s.loadDotenv()
	return strings.TrimSpace(s.dotenv[name])
}

func (s *EnvStore) loadDotenv() {
	s.once.Do(func() {
		if s.envFile == "" {
			return
		}
		values, err := godotenv.Read(s.envFile)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.loadErr = fmt.Errorf("read %s: %w", s.envFile, err)
			}
			return
		}
		s.dotenv = values
	})
}

var _ ports.CredentialProvider = (*EnvStore)(nil)
