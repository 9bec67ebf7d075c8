package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/lottery_engine/internal/config"
	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

func TestBuildOracle(t *testing.T) {
	cfg := config.Defaults()
	cfg.Engine.RandomnessOracleID = "hmac-oracle"
	cfg.Oracle.HMACSecret = "local-secret-0123456789"

	rng, proofs, err := buildOracle(cfg)
	require.NoError(t, err)
	assert.Equal(t, "hmac-oracle", rng.(settlement.IdentifiedOracle).ID().String())
	assert.NotNil(t, proofs, "hmac draws can be rechecked")

	cfg.Oracle.Driver = "http"
	cfg.Oracle.URL = "http://oracle.invalid"
	rng, proofs, err = buildOracle(cfg)
	require.NoError(t, err)
	assert.Equal(t, "hmac-oracle", rng.(settlement.IdentifiedOracle).ID().String())
	assert.Nil(t, proofs)

	cfg.Oracle.Driver = "hmac"
	cfg.Oracle.HMACSecret = "short"
	_, _, err = buildOracle(cfg)
	assert.Error(t, err)
}
