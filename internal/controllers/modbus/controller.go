package modbusctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	mbserver "github.com/tbrandon/mbserver"

	"github.com/Agrid-Dev/airtank/internal/ports"
	"github.com/Agrid-Dev/airtank/internal/tank"
)

// Register map. Floats are IEEE-754 float32 spread over two registers, high
// word first.
const (
	HRAmbientPressure = 0
	HRPressure        = 2 // write to refill
	holdingCount      = 4

	IRPressure     = 0
	IRDensity      = 2
	IRTemperature  = 4
	IRExitVelocity = 6
	IRThrust       = 8
	IRAirMass      = 10
	IRElapsed      = 12
	IRPhase        = 14
	inputCount     = 15

	CoilValveOpen = 0
)

// Config for the Modbus controller.
type Config struct {
	DeviceID string
	Addr     string
	UnitID   byte // UnitID (Modbus slave/unit ID). Use an integer 1..247.
}

type Controller struct {
	svc ports.TankService
	cfg Config

	serv   *mbserver.Server
	logger *log.Entry
}

func New(svc ports.TankService, cfg Config) (*Controller, error) {
	if cfg.UnitID == 0 {
		return nil, errors.New("modbus: UnitID is required (non-zero)")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:1502"
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		logger: log.WithFields(log.Fields{
			"controller": "modbus",
			"device_id":  cfg.DeviceID,
		}),
	}, nil
}

// Run starts the Modbus server and registers handlers that read from and write
// to the tank service directly. It blocks until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	serv := mbserver.NewServer()
	c.serv = serv

	// Handlers are registered before listening to avoid racing mbserver's
	// goroutines.
	serv.RegisterFunctionHandler(1, c.readCoils)
	serv.RegisterFunctionHandler(3, c.readHoldingRegisters)
	serv.RegisterFunctionHandler(4, c.readInputRegisters)
	serv.RegisterFunctionHandler(5, c.writeSingleCoil)
	serv.RegisterFunctionHandler(6, c.writeSingleRegister)
	serv.RegisterFunctionHandler(16, c.writeMultipleRegisters)

	if err := serv.ListenTCP(c.cfg.Addr); err != nil {
		return fmt.Errorf("mbserver listen tcp %s: %w", c.cfg.Addr, err)
	}
	c.logger.WithField("addr", c.cfg.Addr).Info("listening")

	<-ctx.Done()
	serv.Close()
	return ctx.Err()
}

func (c *Controller) readCoils(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	start, qty, exc := readRange(frame.GetData(), 2000)
	if exc != nil {
		return []byte{}, exc
	}
	// Only coil 0 (valve) exists.
	if start != CoilValveOpen || qty != 1 {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	coil := byte(0)
	if c.svc.Get().ValveOpen {
		coil = 0x01
	}
	return []byte{1, coil}, &mbserver.Success
}

func (c *Controller) readHoldingRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	s := c.svc.Get()
	regs := make([]uint16, 0, holdingCount)
	regs = appendFloat(regs, s.AmbientPressure)
	regs = appendFloat(regs, s.Pressure)
	return respondRegisters(frame.GetData(), regs)
}

func (c *Controller) readInputRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	regs := inputRegisters(c.svc.Get())
	return respondRegisters(frame.GetData(), regs)
}

func inputRegisters(s tank.Snapshot) []uint16 {
	regs := make([]uint16, 0, inputCount)
	regs = appendFloat(regs, s.Pressure)
	regs = appendFloat(regs, s.Density)
	regs = appendFloat(regs, s.Temperature)
	regs = appendFloat(regs, s.ExitVelocity)
	regs = appendFloat(regs, s.Thrust)
	regs = appendFloat(regs, s.AirMass)
	regs = appendFloat(regs, s.Elapsed.Seconds())
	return append(regs, uint16(s.Phase()))
}

func (c *Controller) writeSingleCoil(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	addr := binary.BigEndian.Uint16(data[0:2])
	value := binary.BigEndian.Uint16(data[2:4])

	if addr != CoilValveOpen {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	var open bool
	switch value {
	case 0x0000:
		open = false
	case 0xFF00:
		open = true
	default:
		return []byte{}, &mbserver.IllegalDataValue
	}

	c.svc.SetValveOpen(open)

	// echo request (address + value)
	resp := make([]byte, 4)
	copy(resp, data[0:4])
	return resp, &mbserver.Success
}

// Every holding value spans two registers, so single register writes are
// refused.
func (c *Controller) writeSingleRegister(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	if len(frame.GetData()) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	return []byte{}, &mbserver.IllegalDataAddress
}

func (c *Controller) writeMultipleRegisters(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	d := frame.GetData()
	if len(d) < 5 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(d[0:2])
	quantity := binary.BigEndian.Uint16(d[2:4])
	byteCount := int(d[4])
	if quantity == 0 || byteCount != int(quantity)*2 || len(d) < 5+byteCount {
		return []byte{}, &mbserver.IllegalDataValue
	}
	if start%2 != 0 || quantity%2 != 0 || int(start)+int(quantity) > holdingCount {
		return []byte{}, &mbserver.IllegalDataAddress
	}

	values := make(map[int]float64, int(quantity)/2)
	for i := 0; i < int(quantity); i += 2 {
		hi := binary.BigEndian.Uint16(d[5+i*2 : 7+i*2])
		lo := binary.BigEndian.Uint16(d[7+i*2 : 9+i*2])
		v := decodeFloat(hi, lo)
		if !(v > 0) || math.IsInf(v, 0) {
			return []byte{}, &mbserver.IllegalDataValue
		}
		values[int(start)+i] = v
	}
	if exc := c.applyHolding(values); exc != nil {
		return []byte{}, exc
	}

	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], start)
	binary.BigEndian.PutUint16(resp[2:4], quantity)
	return resp, &mbserver.Success
}

// applyHolding writes ambient pressure before refilling, since the refill
// limit depends on ambient. A rejected refill restores the previous ambient
// pressure so the request has no effect.
func (c *Controller) applyHolding(values map[int]float64) *mbserver.Exception {
	prevAmbient := c.svc.Get().AmbientPressure

	ambient, setAmbient := values[HRAmbientPressure]
	if setAmbient {
		if err := c.svc.SetAmbientPressure(ambient); err != nil {
			c.logger.WithError(err).WithField("register", HRAmbientPressure).Warn("write rejected")
			return &mbserver.IllegalDataValue
		}
	}
	if pressure, ok := values[HRPressure]; ok {
		if err := c.svc.Refill(pressure); err != nil {
			c.logger.WithError(err).WithField("register", HRPressure).Warn("write rejected")
			if setAmbient {
				if rerr := c.svc.SetAmbientPressure(prevAmbient); rerr != nil {
					c.logger.WithError(rerr).Error("restore ambient pressure")
				}
			}
			return &mbserver.IllegalDataValue
		}
	}
	return nil
}

func readRange(data []byte, maxQty int) (start, qty int, exc *mbserver.Exception) {
	if len(data) < 4 {
		return 0, 0, &mbserver.IllegalDataValue
	}
	start = int(binary.BigEndian.Uint16(data[0:2]))
	qty = int(binary.BigEndian.Uint16(data[2:4]))
	if qty == 0 || qty > maxQty {
		return 0, 0, &mbserver.IllegalDataValue
	}
	return start, qty, nil
}

func respondRegisters(data []byte, regs []uint16) ([]byte, *mbserver.Exception) {
	start, qty, exc := readRange(data, 125)
	if exc != nil {
		return []byte{}, exc
	}
	if start+qty > len(regs) {
		return []byte{}, &mbserver.IllegalDataAddress
	}
	byteCount := qty * 2
	resp := make([]byte, 1+byteCount)
	resp[0] = byte(byteCount)
	for i, r := range regs[start : start+qty] {
		binary.BigEndian.PutUint16(resp[1+i*2:3+i*2], r)
	}
	return resp, &mbserver.Success
}

func appendFloat(regs []uint16, v float64) []uint16 {
	hi, lo := encodeFloat(v)
	return append(regs, hi, lo)
}

func encodeFloat(v float64) (hi, lo uint16) {
	b := math.Float32bits(float32(v))
	return uint16(b >> 16), uint16(b)
}

func decodeFloat(hi, lo uint16) float64 {
	return float64(math.Float32frombits(uint32(hi)<<16 | uint32(lo)))
}
