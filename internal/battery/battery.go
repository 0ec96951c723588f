// Package battery reads the charge of a PiSugar-style UPS over I2C so
// battery-powered boards can show their level in the page footer.
package battery

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	appLog "classboard/internal/log"
)

// Status is the current battery level.
type Status struct {
	Percent   int `json:"percent"`
	VoltageMv int `json:"voltage_mv"`
}

// Reader obtains battery status.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// Register map of the gauge.
const (
	defaultAddr   = 0x57
	regVoltageHi  = 0x22
	regVoltageLo  = 0x23
	regPercentage = 0x2A
)

type i2cReader struct {
	busName string
	addr    uint16
}

// NewI2CReader reads the gauge at addr on busName ("" picks the default
// bus, /dev/i2c-1 on a Raspberry Pi). The bus is opened per Read.
func NewI2CReader(busName string, addr uint16) Reader {
	return &i2cReader{busName: busName, addr: addr}
}

func (r *i2cReader) Read(_ context.Context) (Status, error) {
	if runtime.GOOS != "linux" {
		return Status{}, errors.New("battery: i2c reader unavailable on this platform")
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
		err := dev.Tx([]byte{reg}, buf)
		return buf[0], err
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

	return Status{
		Percent:   clampPercent(int(pct)),
		VoltageMv: int(uint16(hi)<<8 | uint16(lo)),
	}, nil
}

// mockReader returns a pseudo-random level for development machines.
type mockReader struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMockReader() Reader {
	return &mockReader{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (m *mockReader) Read(_ context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Percent: 20 + m.rnd.Intn(81)}, nil
}

// DefaultReader returns the I2C gauge reader. It probes once and logs a
// warning when no gauge answers; reads then keep failing so callers report
// the error instead of a made-up level. Use NewMockReader explicitly for
// development machines.
func DefaultReader() Reader {
	r := NewI2CReader("", defaultAddr)
	if _, err := r.Read(context.Background()); err != nil {
		appLog.Warn("battery gauge not responding; readings will fail", "err", err, "addr", defaultAddr)
	}
	return r
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// Cache wraps a Reader and serves the last value for ttl. Battery level does
// not need sub-second precision and the bus is slow.
type Cache struct {
	reader Reader
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	last      Status
	updatedAt time.Time
}

func NewCache(r Reader, ttl time.Duration) *Cache {
	return &Cache{reader: r, ttl: ttl, now: time.Now}
}

// Read returns the cached status when fresh, otherwise reads through.
func (c *Cache) Read(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.updatedAt.IsZero() && now.Sub(c.updatedAt) < c.ttl {
		return c.last, nil
	}
	st, err := c.reader.Read(ctx)
	if err != nil {
		return Status{}, err
	}
	c.last, c.updatedAt = st, now
	return st, nil
}
