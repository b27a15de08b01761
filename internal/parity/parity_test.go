package parity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

const healthyOutput = `Loading "test.par2".
Loaded 1 new packets
Target: "test.bin" - found.
All files are correct, repair is not required.
`

const damagedRepairableOutput = `Loading "test.par2".
Target: "test.bin" - damaged. Found 10 of 12 data blocks.
Repair is required.
You have 12 out of 12 data blocks available.
You have 4 recovery blocks available.
Repair is possible.
`

const damagedUnrepairableOutput = `Loading "test.par2".
Target: "test.bin" - damaged. Found 8 of 12 data blocks.
Repair is required.
Repair is not possible.
You need 3 more recovery blocks to be able to repair.
You have 1 recovery block available.
`

func TestParseVerifyOutputHealthy(t *testing.T) {
	res := parseVerifyOutput(healthyOutput)
	assert.False(t, res.Damaged)
	assert.Empty(t, res.DamagedFiles)
}

func TestParseVerifyOutputDamagedRepairable(t *testing.T) {
	res := parseVerifyOutput(damagedRepairableOutput)
	assert.True(t, res.Damaged)
	assert.Equal(t, []string{"test.bin"}, res.DamagedFiles)
	assert.Equal(t, 4, res.BlocksAvailable)
}

func TestParseVerifyOutputDamagedUnrepairable(t *testing.T) {
	res := parseVerifyOutput(damagedUnrepairableOutput)
	assert.True(t, res.Damaged)
	assert.Equal(t, 1, res.BlocksAvailable)
	assert.Equal(t, 4, res.BlocksNeeded)
	assert.Greater(t, res.BlocksNeeded, res.BlocksAvailable)
}

func TestParseRepairOutputSuccess(t *testing.T) {
	res := parseRepairOutput("Repairing...\nRepair complete.\n")
	assert.True(t, res.Success)
}

func TestParseRepairOutputFailure(t *testing.T) {
	res := parseRepairOutput("Repair is not possible.\nYou need 3 more recovery blocks to be able to repair.\nYou have 1 recovery block available.\n")
	assert.False(t, res.Success)
	assert.Equal(t, 4, res.BlocksNeeded)
}

func TestNoOpCapabilities(t *testing.T) {
	h := NoOp{}
	caps := h.Capabilities()
	assert.False(t, caps.CanVerify)
	assert.False(t, caps.CanRepair)

	_, err := h.Verify(context.Background(), "/tmp")
	assert.Error(t, err)
	_, err = h.Repair(context.Background(), "/tmp")
	assert.Error(t, err)
}

func TestDiscoverFallsBackToNoOpWhenUnavailable(t *testing.T) {
	h := Discover("/nonexistent/par2-binary-xyz", false)
	_, ok := h.(NoOp)
	assert.True(t, ok)
}
