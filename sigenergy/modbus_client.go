// Package sigenergy is a minimal Modbus client for the Sigenergy
// remote-EMS register block: just enough surface for intentexec to
// hand over control and push one inverter's charge/discharge limits.
// Reading plant/inverter telemetry, AC-charger control, and the other
// register blocks the Sigenergy spec documents are out of scope — this
// executor never reads back state (see intentexec's package doc).
package sigenergy

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// PlantAddress is the fixed slave address the plant-level remote EMS
// registers (40029-40035) live behind.
const PlantAddress = 247

// SigenModbusClient is a thin wrapper over goburrow/modbus scoped to
// remote EMS control: enable/disable, pick a mode, set the charge and
// discharge power limits.
type SigenModbusClient struct {
	client     modbus.Client
	handler    *modbus.RTUClientHandler
	tcpHandler *modbus.TCPClientHandler
}

// NewRTUClient connects over serial Modbus RTU.
func NewRTUClient(device string, baudRate int, slaveID byte) (*SigenModbusClient, error) {
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}

	return &SigenModbusClient{
		client:  modbus.NewClient(handler),
		handler: handler,
	}, nil
}

// NewTCPClient connects over Modbus TCP, the transport main.go's
// executor loop uses.
func NewTCPClient(address string, slaveID byte) (*SigenModbusClient, error) {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = slaveID
	handler.Timeout = 1 * time.Second

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}

	return &SigenModbusClient{
		client:     modbus.NewClient(handler),
		tcpHandler: handler,
	}, nil
}

// Close closes the underlying handler.
func (c *SigenModbusClient) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	if c.tcpHandler != nil {
		return c.tcpHandler.Close()
	}
	return nil
}

func (c *SigenModbusClient) setSlaveID(slaveID byte) {
	if c.handler != nil {
		c.handler.SlaveId = slaveID
	}
	if c.tcpHandler != nil {
		c.tcpHandler.SlaveId = slaveID
	}
}

func u32ToBytes(val uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, val)
	return buf
}

// EnableRemoteEMS enables or disables remote EMS control (register 40029).
func (c *SigenModbusClient) EnableRemoteEMS(enable bool) error {
	c.setSlaveID(PlantAddress)
	var value uint16
	if enable {
		value = 1
	}
	_, err := c.client.WriteSingleRegister(40029, value)
	return err
}

// SetRemoteEMSMode sets the remote EMS control mode (register 40031):
// 0 PCS remote control, 1 standby, 2 maximum self-consumption,
// 3 command charging (grid first), 4 command charging (PV first),
// 5 command discharging (PV first), 6 command discharging (ESS first).
func (c *SigenModbusClient) SetRemoteEMSMode(mode uint16) error {
	c.setSlaveID(PlantAddress)
	_, err := c.client.WriteSingleRegister(40031, mode)
	return err
}

// SetESSMaxChargingLimit sets the battery's max charging limit in kW
// (registers 40032-40033, scaled by 1000).
func (c *SigenModbusClient) SetESSMaxChargingLimit(powerKW float64) error {
	c.setSlaveID(PlantAddress)
	value := uint32(powerKW * 1000)
	_, err := c.client.WriteMultipleRegisters(40032, 2, u32ToBytes(value))
	return err
}

// SetESSMaxDischargingLimit sets the battery's max discharging limit in
// kW (registers 40034-40035, scaled by 1000).
func (c *SigenModbusClient) SetESSMaxDischargingLimit(powerKW float64) error {
	c.setSlaveID(PlantAddress)
	value := uint32(powerKW * 1000)
	_, err := c.client.WriteMultipleRegisters(40034, 2, u32ToBytes(value))
	return err
}
