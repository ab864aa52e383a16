package services

import (
	"fmt"

	"userform_payments/internal/config"
)

// GatewaysFromConfig registers the manual gateway plus every gateway with
// credentials in cfg
func GatewaysFromConfig(cfg *config.Config) (*GatewayRegistry, error) {
	registry := NewGatewayRegistry(ManualGateway{})
	if cfg.MidtransServerKey != "" {
		registry.Register(NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransClientKey, cfg.MidtransIsProduction))
	}
	if cfg.OmiseSecretKey != "" {
		omiseGateway, err := NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Omise: %w", err)
		}
		registry.Register(omiseGateway)
	}
	return registry, nil
}
