package service

import (
	"context"
	"fmt"
	"time"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// gatewayConfigService implements ports.GatewayConfigStore. It is the trust
// boundary around provider credentials: declared secret fields are encrypted
// before persistence and masked before a config leaves the service. Only
// Resolve and ResolveByID hand out decrypted configs, and only to internal
// callers.
type gatewayConfigService struct {
	repo     ports.GatewayConfigRepository
	payments ports.PaymentRepository
	cipher   ports.CredentialCipher
	factory  ports.GatewayFactory
	log      zerolog.Logger
}

// NewGatewayConfigService creates the gateway configuration store.
func NewGatewayConfigService(
	repo ports.GatewayConfigRepository,
	payments ports.PaymentRepository,
	cipher ports.CredentialCipher,
	factory ports.GatewayFactory,
	log zerolog.Logger,
) ports.GatewayConfigStore {
	return &gatewayConfigService{
		repo:     repo,
		payments: payments,
		cipher:   cipher,
		factory:  factory,
		log:      log,
	}
}

// List returns matching configs with secrets masked.
func (s *gatewayConfigService) List(ctx context.Context, filter ports.GatewayConfigFilter) ([]domain.GatewayConfig, error) {
	configs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	for i := range configs {
		maskSecrets(&configs[i])
	}
	return configs, nil
}

// Get returns one config with secrets masked.
func (s *gatewayConfigService) Get(ctx context.Context, id uuid.UUID) (*domain.GatewayConfig, error) {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if cfg == nil {
		return nil, apperror.NotFound("gateway configuration")
	}
	maskSecrets(cfg)
	return cfg, nil
}

// Create validates, encrypts and persists a new provider configuration.
func (s *gatewayConfigService) Create(ctx context.Context, cfg *domain.GatewayConfig) (*domain.GatewayConfig, error) {
	if err := s.validate(cfg); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByTypeAndBank(ctx, cfg.Type, cfg.Bank)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if existing != nil {
		return nil, apperror.Conflict(fmt.Sprintf("a %s configuration already exists for this provider/bank pair", cfg.Type))
	}

	cfg.ID = uuid.New()
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := s.encryptSecrets(cfg); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().
		Str("gateway_id", cfg.ID.String()).
		Str("type", string(cfg.Type)).
		Str("bank", string(cfg.Bank)).
		Bool("test_mode", cfg.TestMode).
		Msg("gateway configuration created")

	out := *cfg
	maskSecrets(&out)
	return &out, nil
}

// Update replaces a configuration. Secret values echoed back as the mask are
// kept from the stored row, so clients can round-trip a masked read.
func (s *gatewayConfigService) Update(ctx context.Context, cfg *domain.GatewayConfig) (*domain.GatewayConfig, error) {
	current, err := s.repo.GetByID(ctx, cfg.ID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if current == nil {
		return nil, apperror.NotFound("gateway configuration")
	}
	if cfg.Type != current.Type || cfg.Bank != current.Bank {
		return nil, apperror.Validation("provider type and bank are immutable")
	}

	restoreMaskedSecrets(cfg, current)

	if err := s.validate(cfg); err != nil {
		return nil, err
	}
	if err := s.encryptSecrets(cfg); err != nil {
		return nil, err
	}

	cfg.CreatedAt = current.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().Str("gateway_id", cfg.ID.String()).Msg("gateway configuration updated")

	out := *cfg
	maskSecrets(&out)
	return &out, nil
}

// Delete removes a configuration unless payments reference it.
func (s *gatewayConfigService) Delete(ctx context.Context, id uuid.UUID) error {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return apperror.InternalError(err)
	}
	if cfg == nil {
		return apperror.NotFound("gateway configuration")
	}

	count, err := s.payments.CountByGateway(ctx, id)
	if err != nil {
		return apperror.InternalError(err)
	}
	if count > 0 {
		return apperror.Conflict("gateway configuration is referenced by existing payments")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return apperror.InternalError(err)
	}
	s.log.Info().Str("gateway_id", id.String()).Msg("gateway configuration deleted")
	return nil
}

// Resolve finds the first enabled config for (type, bank) by display position
// and returns it with secrets decrypted. Internal use only.
func (s *gatewayConfigService) Resolve(ctx context.Context, t domain.ProviderType, bank domain.BankCode) (*domain.GatewayConfig, error) {
	if !t.Valid() {
		return nil, apperror.Validationf("unknown provider type %q", t)
	}

	var cfg *domain.GatewayConfig
	if bank != "" {
		found, err := s.repo.GetByTypeAndBank(ctx, t, bank)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		cfg = found
	} else {
		enabled := true
		configs, err := s.repo.List(ctx, ports.GatewayConfigFilter{Type: &t, Enabled: &enabled})
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if len(configs) > 0 {
			cfg = &configs[0]
		}
	}

	if cfg == nil || !cfg.Enabled {
		return nil, apperror.NotFound("enabled gateway configuration")
	}
	if err := s.decryptSecrets(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveByID returns one config with secrets decrypted. Internal use only.
func (s *gatewayConfigService) ResolveByID(ctx context.Context, id uuid.UUID) (*domain.GatewayConfig, error) {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if cfg == nil {
		return nil, apperror.NotFound("gateway configuration")
	}
	if err := s.decryptSecrets(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate performs structural validation: known type, bank rules, and the
// provider adapter's own config checks via a throwaway Build.
func (s *gatewayConfigService) validate(cfg *domain.GatewayConfig) error {
	if !cfg.Type.Valid() {
		return apperror.Validationf("unknown provider type %q", cfg.Type)
	}
	if cfg.Type == domain.ProviderRBS {
		if cfg.Bank != "" && !cfg.Bank.Valid() {
			return apperror.Validationf("unknown bank %q", cfg.Bank)
		}
	} else if cfg.Bank != "" {
		return apperror.Validationf("bank selector is only valid for %s configurations", domain.ProviderRBS)
	}
	if cfg.Name == "" {
		return apperror.Validation("name is required")
	}
	if _, err := s.factory.Build(cfg); err != nil {
		return err
	}
	return nil
}

// encryptSecrets seals every declared secret path in place. Encryption is a
// no-op on values already in envelope form.
func (s *gatewayConfigService) encryptSecrets(cfg *domain.GatewayConfig) error {
	for _, path := range domain.SecretFields(cfg.Type) {
		if err := applySecretPath(cfg.Config, path, func(v string) (string, error) {
			if v == "" {
				return v, nil
			}
			return s.cipher.Encrypt(v)
		}); err != nil {
			return err
		}
	}
	return nil
}

// decryptSecrets opens every declared secret path. The bundle is deep-cloned
// first so plaintext never lands in a map a repository still holds.
func (s *gatewayConfigService) decryptSecrets(cfg *domain.GatewayConfig) error {
	cfg.Config = cfg.CloneConfig()
	for _, path := range domain.SecretFields(cfg.Type) {
		if err := applySecretPath(cfg.Config, path, func(v string) (string, error) {
			if !s.cipher.IsEncrypted(v) {
				return v, nil
			}
			return s.cipher.Decrypt(v)
		}); err != nil {
			return err
		}
	}
	return nil
}

// maskSecrets replaces every non-empty declared secret with the mask. The
// bundle is deep-cloned first so the stored ciphertext is never overwritten.
func maskSecrets(cfg *domain.GatewayConfig) {
	cfg.Config = cfg.CloneConfig()
	for _, path := range domain.SecretFields(cfg.Type) {
		_ = applySecretPath(cfg.Config, path, func(v string) (string, error) {
			if v == "" {
				return v, nil
			}
			return domain.SecretFieldMask, nil
		})
	}
}

// restoreMaskedSecrets copies the stored ciphertext back over any secret the
// client echoed as the mask, walking incoming and stored bundles in parallel
// so wildcard segments resolve to the same concrete keys.
func restoreMaskedSecrets(incoming, stored *domain.GatewayConfig) {
	for _, path := range domain.SecretFields(incoming.Type) {
		restoreSecretPath(incoming.Config, stored.Config, path)
	}
}

func restoreSecretPath(in, st map[string]any, path []string) {
	if len(path) == 0 || in == nil || st == nil {
		return
	}
	key := path[0]

	if key == domain.SecretWildcard {
		for k, child := range in {
			inChild, ok := child.(map[string]any)
			if !ok {
				continue
			}
			stChild, _ := st[k].(map[string]any)
			restoreSecretPath(inChild, stChild, path[1:])
		}
		return
	}

	if len(path) == 1 {
		if v, ok := in[key].(string); !ok || v != domain.SecretFieldMask {
			return
		}
		if prev, ok := st[key].(string); ok {
			in[key] = prev
		}
		return
	}

	inChild, ok := in[key].(map[string]any)
	if !ok {
		return
	}
	stChild, _ := st[key].(map[string]any)
	restoreSecretPath(inChild, stChild, path[1:])
}

// applySecretPath walks one declared path through the config bundle and
// rewrites the string leaf with fn. A wildcard segment spans every key of the
// nested object at that level. Missing segments are not an error: the schema
// is a superset of what any single config carries.
func applySecretPath(node map[string]any, path []string, fn func(string) (string, error)) error {
	if len(path) == 0 || node == nil {
		return nil
	}
	key := path[0]

	if key == domain.SecretWildcard {
		for k, child := range node {
			childMap, ok := child.(map[string]any)
			if !ok {
				continue
			}
			if err := applySecretPath(childMap, path[1:], fn); err != nil {
				return err
			}
			node[k] = childMap
		}
		return nil
	}

	if len(path) == 1 {
		v, ok := node[key].(string)
		if !ok {
			return nil
		}
		out, err := fn(v)
		if err != nil {
			return err
		}
		node[key] = out
		return nil
	}

	child, ok := node[key].(map[string]any)
	if !ok {
		return nil
	}
	return applySecretPath(child, path[1:], fn)
}
