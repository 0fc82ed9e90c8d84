// Package battery reads the PiSugar UPS the appliance usually runs on.
// When the I²C bus is missing (development machines, bare Pis without the
// hat) a mock reader takes over so the web API always has something to
// report.
package battery

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PiSugar3 register map: voltage millivolts big-endian at 0x22/0x23,
// percent at 0x2A, controller at address 0x57.
const (
	pisugarAddr   = 0x57
	regVoltageHi  = 0x22
	regVoltageLo  = 0x23
	regPercentage = 0x2A
)

// Status is the battery snapshot exposed on the web API.
type Status struct {
	// Percent is the charge level, 0 to 100.
	Percent int `json:"percent"`
	// VoltageMv is the pack voltage in millivolts, 0 when unknown.
	VoltageMv int `json:"voltage_mv"`
	// Mock marks readings that did not come from hardware.
	Mock bool `json:"mock"`
}

// Reader yields battery snapshots.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// mockReader fabricates plausible levels for machines without the hat.
type mockReader struct {
	rnd *rand.Rand
}

// NewMock returns a reader that fabricates charge levels between 20 and
// 100 percent.
func NewMock() Reader {
	return &mockReader{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (m *mockReader) Read(context.Context) (Status, error) {
	return Status{Percent: 20 + m.rnd.Intn(81), Mock: true}, nil
}

// pisugarReader talks to the PiSugar3 controller. The bus is opened per
// read; reads happen every few minutes at most and keeping the bus open
// would hold the device against other tools.
type pisugarReader struct {
	busName string
	addr    uint16
}

// NewPiSugar returns an I²C-backed reader. An empty busName selects the
// platform default bus, /dev/i2c-1 on a Raspberry Pi.
func NewPiSugar(busName string, addr uint16) Reader {
	if addr == 0 {
		addr = pisugarAddr
	}
	return &pisugarReader{busName: busName, addr: addr}
}

func (r *pisugarReader) Read(ctx context.Context) (Status, error) {
	if runtime.GOOS != "linux" {
		return Status{}, errors.New("battery: i2c unavailable on this platform")
	}
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if _, err := host.Init(); err != nil {
		return Status{}, err
	}

	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, err
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.addr}
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, err
		}
		return buf[0], nil
	}

	hi, err := readReg(regVoltageHi)
	if err != nil {
		return Status{}, err
	}
	lo, err := readReg(regVoltageLo)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercentage)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}

	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(hi)<<8 | uint16(lo)),
	}, nil
}

// Default probes the PiSugar once and falls back to the mock when the
// probe fails, so callers never deal with a missing reader.
func Default() Reader {
	if runtime.GOOS != "linux" {
		return NewMock()
	}
	r := NewPiSugar("", pisugarAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := r.Read(ctx); err != nil {
		return NewMock()
	}
	return r
}
