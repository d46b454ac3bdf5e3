package intentexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/ems-core/intent"
)

type fakeClient struct {
	enabled        bool
	mode           uint16
	chargeLimit    float64
	dischargeLimit float64
	calls          []string
}

func (f *fakeClient) EnableRemoteEMS(enable bool) error {
	f.enabled = enable
	f.calls = append(f.calls, "enable")
	return nil
}

func (f *fakeClient) SetRemoteEMSMode(mode uint16) error {
	f.mode = mode
	f.calls = append(f.calls, "mode")
	return nil
}

func (f *fakeClient) SetESSMaxChargingLimit(kw float64) error {
	f.chargeLimit = kw
	f.calls = append(f.calls, "charge_limit")
	return nil
}

func (f *fakeClient) SetESSMaxDischargingLimit(kw float64) error {
	f.dischargeLimit = kw
	f.calls = append(f.calls, "discharge_limit")
	return nil
}

func TestApply_ForceCharge(t *testing.T) {
	client := &fakeClient{}
	e := NewExecutor(client, false, nil)

	require.NoError(t, e.Apply(intent.InverterIntent{Mode: intent.ModeForceCharge, ChargeKw: 3.5}))

	assert.True(t, client.enabled)
	assert.Equal(t, modeCommandChargePVFirst, client.mode)
	assert.Equal(t, 3.5, client.chargeLimit)
}

func TestApply_ForceDischarge(t *testing.T) {
	client := &fakeClient{}
	e := NewExecutor(client, false, nil)

	require.NoError(t, e.Apply(intent.InverterIntent{Mode: intent.ModeForceDischarge, DischargeKw: 2.0}))

	assert.Equal(t, modeCommandDischargeESSFirst, client.mode)
	assert.Equal(t, 2.0, client.dischargeLimit)
}

func TestApply_DefaultModeKeepsBatteryIdle(t *testing.T) {
	client := &fakeClient{}
	e := NewExecutor(client, false, nil)

	require.NoError(t, e.Apply(intent.InverterIntent{Mode: intent.ModeSelfConsumption}))

	assert.Equal(t, modeCommandChargePVFirst, client.mode)
	assert.Equal(t, 0.0, client.chargeLimit)
	assert.Equal(t, 0.0, client.dischargeLimit)
}

func TestApply_DryRunMakesNoCalls(t *testing.T) {
	client := &fakeClient{}
	e := NewExecutor(client, true, nil)

	require.NoError(t, e.Apply(intent.InverterIntent{Mode: intent.ModeForceCharge, ChargeKw: 3.5}))

	assert.Empty(t, client.calls)
}
