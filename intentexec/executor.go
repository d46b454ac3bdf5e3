// Package intentexec translates an intent.InverterIntent into Sigenergy
// remote-EMS Modbus register writes. Grounded directly on the teacher's
// scheduler.executeMPCDecision: enable remote EMS, pick a control mode,
// then set the matching power limit. It is deliberately thin — a single
// best-effort write sequence with no retry loop and no feedback
// read-back, since closing that loop is the declared downstream-controller
// Non-goal (spec.md §1).
package intentexec

import (
	"fmt"
	"log"

	"github.com/devskill-org/ems-core/intent"
)

// Sigenergy remote EMS control modes this executor uses
// (sigenergy.SetRemoteEMSMode); modes 0, 1, 2, 3, 5 exist on the wire
// but have no Apply branch because no InverterMode maps to them.
const (
	modeCommandChargePVFirst     uint16 = 4
	modeCommandDischargeESSFirst uint16 = 6
)

// InverterClient is the subset of sigenergy.SigenModbusClient this
// package drives.
type InverterClient interface {
	EnableRemoteEMS(enable bool) error
	SetRemoteEMSMode(mode uint16) error
	SetESSMaxChargingLimit(powerKW float64) error
	SetESSMaxDischargingLimit(powerKW float64) error
}

// Executor applies one InverterIntent to one physical inverter.
type Executor struct {
	client InverterClient
	dryRun bool
	logger *log.Logger
}

// NewExecutor builds an Executor. A nil logger defaults to log.Default().
func NewExecutor(client InverterClient, dryRun bool, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{client: client, dryRun: dryRun, logger: logger}
}

// Apply issues the Modbus writes for in. Idle and informational modes
// (backup, export priority, self consumption) are all executed as a
// PV-first command with zero charge/discharge limits, mirroring the
// teacher's idle branch — the battery is simply left out of the loop
// while the grid import/export implied by the plan takes over.
func (e *Executor) Apply(in intent.InverterIntent) error {
	if e.dryRun {
		e.logger.Printf("DRY-RUN: would apply inverter intent mode=%s charge_kw=%.2f discharge_kw=%.2f",
			in.Mode, in.ChargeKw, in.DischargeKw)
		return nil
	}

	if err := e.client.EnableRemoteEMS(true); err != nil {
		return fmt.Errorf("intentexec: enable remote ems: %w", err)
	}

	switch in.Mode {
	case intent.ModeForceCharge:
		if err := e.client.SetRemoteEMSMode(modeCommandChargePVFirst); err != nil {
			return fmt.Errorf("intentexec: set mode: %w", err)
		}
		if err := e.client.SetESSMaxChargingLimit(in.ChargeKw); err != nil {
			return fmt.Errorf("intentexec: set charging limit: %w", err)
		}
	case intent.ModeForceDischarge:
		if err := e.client.SetRemoteEMSMode(modeCommandDischargeESSFirst); err != nil {
			return fmt.Errorf("intentexec: set mode: %w", err)
		}
		if err := e.client.SetESSMaxDischargingLimit(in.DischargeKw); err != nil {
			return fmt.Errorf("intentexec: set discharging limit: %w", err)
		}
	default:
		if err := e.client.SetRemoteEMSMode(modeCommandChargePVFirst); err != nil {
			return fmt.Errorf("intentexec: set mode: %w", err)
		}
		if err := e.client.SetESSMaxChargingLimit(0); err != nil {
			return fmt.Errorf("intentexec: set charging limit: %w", err)
		}
		if err := e.client.SetESSMaxDischargingLimit(0); err != nil {
			return fmt.Errorf("intentexec: set discharging limit: %w", err)
		}
	}

	e.logger.Printf("applied inverter intent mode=%s charge_kw=%.2f discharge_kw=%.2f", in.Mode, in.ChargeKw, in.DischargeKw)
	return nil
}
