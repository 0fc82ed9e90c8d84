//go:build linux

package epd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"taskcal/internal/log"
)

// BCM pin assignment of the Waveshare e-paper HAT. Chip select is the
// hardware CS0 line of /dev/spidev0.0 and never toggled by hand.
const (
	pinRST  = "GPIO17"
	pinDC   = "GPIO25"
	pinBUSY = "GPIO24"
	pinPWR  = "GPIO18"
)

// A full seven-color refresh takes about 35 seconds; clears take longer.
const busyTimeout = 90 * time.Second

// spidev rejects single transfers past one page worth of its buffer.
const maxTxBytes = 4096

type panel struct {
	port spi.PortCloser
	conn spi.Conn

	rst  gpio.PinOut
	dc   gpio.PinOut
	pwr  gpio.PinOut
	busy gpio.PinIn

	log *logrus.Entry
}

// Open claims the SPI bus and GPIO pins and runs the power-on sequence.
func Open(ctx context.Context, logger *logrus.Entry) (Panel, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: periph host init: %w", err)
	}

	port, err := spireg.Open("")
	if err != nil {
		return nil, fmt.Errorf("epd: open SPI port: %w", err)
	}
	conn, err := port.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("epd: connect SPI: %w", err)
	}

	gpioOut := func(name string, level gpio.Level) (gpio.PinOut, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("epd: gpio %s not found", name)
		}
		if err := p.Out(level); err != nil {
			return nil, fmt.Errorf("epd: gpio %s: %w", name, err)
		}
		return p, nil
	}

	pnl := &panel{port: port, conn: conn, log: logger}
	if pnl.rst, err = gpioOut(pinRST, gpio.High); err != nil {
		port.Close()
		return nil, err
	}
	if pnl.dc, err = gpioOut(pinDC, gpio.Low); err != nil {
		port.Close()
		return nil, err
	}
	if pnl.pwr, err = gpioOut(pinPWR, gpio.High); err != nil {
		port.Close()
		return nil, err
	}
	busyPin := gpioreg.ByName(pinBUSY)
	if busyPin == nil {
		port.Close()
		return nil, fmt.Errorf("epd: gpio %s not found", pinBUSY)
	}
	if err := busyPin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		port.Close()
		return nil, fmt.Errorf("epd: gpio %s: %w", pinBUSY, err)
	}
	pnl.busy = busyPin

	if err := pnl.init(ctx); err != nil {
		port.Close()
		return nil, err
	}
	logger.Info("epd panel ready")
	return pnl, nil
}

// initSeq is the 7.3" F register setup, straight from the panel datasheet.
var initSeq = []struct {
	cmd  byte
	data []byte
}{
	{0xAA, []byte{0x49, 0x55, 0x20, 0x08, 0x09, 0x18}}, // CMDH
	{0x01, []byte{0x3F, 0x00, 0x32, 0x2A, 0x0E, 0x2A}}, // power
	{0x00, []byte{0x5F, 0x69}},                         // panel setting
	{0x03, []byte{0x00, 0x54, 0x00, 0x44}},             // power off sequence
	{0x05, []byte{0x40, 0x1F, 0x1F, 0x2C}},             // booster 1
	{0x06, []byte{0x6F, 0x1F, 0x16, 0x25}},             // booster 2
	{0x08, []byte{0x6F, 0x1F, 0x1F, 0x22}},             // booster 3
	{0x13, []byte{0x00, 0x04}},                         // IPC
	{0x30, []byte{0x02}},                               // PLL
	{0x41, []byte{0x00}},                               // TSE
	{0x50, []byte{0x3F}},                               // VCOM/data interval
	{0x60, []byte{0x02, 0x00}},                         // TCON
	{0x61, []byte{0x03, 0x20, 0x01, 0xE0}},             // resolution 800x480
	{0x82, []byte{0x1E}},                               // VDCS
	{0x84, []byte{0x00}},                               // T-VDCS
	{0x86, []byte{0x00}},                               // AGID
	{0xE3, []byte{0x2F}},                               // PWS
	{0xE0, []byte{0x00}},                               // CCSET
	{0xE6, []byte{0x00}},                               // TSSET
}

// init resets the controller and loads the register table. It also wakes
// the panel from deep sleep, so Display and Clear run it every time.
func (p *panel) init(ctx context.Context) error {
	p.reset()
	if err := p.waitBusy(ctx); err != nil {
		return err
	}
	for _, step := range initSeq {
		if err := p.sendCommand(step.cmd); err != nil {
			return err
		}
		if err := p.sendData(step.data); err != nil {
			return err
		}
	}
	return nil
}

func (p *panel) reset() {
	p.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
	p.rst.Out(gpio.Low)
	time.Sleep(2 * time.Millisecond)
	p.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
}

func (p *panel) Display(ctx context.Context, buf []byte) error {
	if len(buf) != BufferSize {
		return fmt.Errorf("epd: frame is %d bytes, want %d", len(buf), BufferSize)
	}
	if err := p.init(ctx); err != nil {
		return err
	}
	start := time.Now()
	if err := p.sendCommand(0x10); err != nil {
		return err
	}
	if err := p.sendData(buf); err != nil {
		return err
	}
	if err := p.turnOn(ctx); err != nil {
		return err
	}
	p.log.WithField("took", time.Since(start).Round(time.Second)).Info("epd frame displayed")
	return nil
}

func (p *panel) Clear(ctx context.Context) error {
	if err := p.init(ctx); err != nil {
		return err
	}
	white := make([]byte, BufferSize)
	for i := range white {
		white[i] = whitePair
	}
	if err := p.sendCommand(0x10); err != nil {
		return err
	}
	if err := p.sendData(white); err != nil {
		return err
	}
	return p.turnOn(ctx)
}

// turnOn powers the charge pumps, refreshes, and powers down again.
func (p *panel) turnOn(ctx context.Context) error {
	if err := p.sendCommand(0x04); err != nil { // power on
		return err
	}
	if err := p.waitBusy(ctx); err != nil {
		return err
	}
	if err := p.sendCommand(0x12); err != nil { // display refresh
		return err
	}
	if err := p.sendData([]byte{0x00}); err != nil {
		return err
	}
	if err := p.waitBusy(ctx); err != nil {
		return err
	}
	if err := p.sendCommand(0x02); err != nil { // power off
		return err
	}
	if err := p.sendData([]byte{0x00}); err != nil {
		return err
	}
	return p.waitBusy(ctx)
}

func (p *panel) Sleep() error {
	if err := p.sendCommand(0x07); err != nil {
		return err
	}
	return p.sendData([]byte{0xA5})
}

func (p *panel) Close() error {
	p.rst.Out(gpio.Low)
	p.dc.Out(gpio.Low)
	p.pwr.Out(gpio.Low)
	return p.port.Close()
}

func (p *panel) sendCommand(cmd byte) error {
	if err := p.dc.Out(gpio.Low); err != nil {
		return err
	}
	return p.conn.Tx([]byte{cmd}, nil)
}

// sendData writes in spidev-sized chunks.
func (p *panel) sendData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := p.dc.Out(gpio.High); err != nil {
		return err
	}
	for off := 0; off < len(data); off += maxTxBytes {
		end := off + maxTxBytes
		if end > len(data) {
			end = len(data)
		}
		if err := p.conn.Tx(data[off:end], nil); err != nil {
			return err
		}
	}
	return nil
}

// waitBusy blocks until the controller raises BUSY (low means busy),
// honoring ctx and a hard cap so a dead panel cannot hang a refresh pass.
func (p *panel) waitBusy(ctx context.Context) error {
	deadline := time.Now().Add(busyTimeout)
	for p.busy.Read() == gpio.Low {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("epd: busy wait timed out after %s", busyTimeout)
		}
	}
	return nil
}
