package services

import (
	"reflect"
	"testing"

	"userform_payments/internal/config"
)

func TestGatewaysFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		want []string
	}{
		{"manual only", &config.Config{}, []string{GatewayManual}},
		{"midtrans", &config.Config{MidtransServerKey: "SB-Mid-server-x", MidtransClientKey: "SB-Mid-client-x"}, []string{GatewayManual, GatewayMidtrans}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := GatewaysFromConfig(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if got := registry.SupportedGateways(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("gateways = %v; want %v", got, tt.want)
			}
		})
	}
}
