package battery

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingReader struct {
	calls int
	err   error
}

func (r *countingReader) Read(context.Context) (Status, error) {
	r.calls++
	if r.err != nil {
		return Status{}, r.err
	}
	return Status{Percent: 50 + r.calls, VoltageMv: 3900}, nil
}

func TestCacheServesWithinTTL(t *testing.T) {
	r := &countingReader{}
	c := NewCache(r, 30*time.Second)
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	a, _ := c.Read(context.Background())
	now = now.Add(10 * time.Second)
	b, _ := c.Read(context.Background())
	if r.calls != 1 || a != b {
		t.Fatalf("calls = %d, a = %+v, b = %+v", r.calls, a, b)
	}

	now = now.Add(30 * time.Second)
	if st, _ := c.Read(context.Background()); st.Percent != 52 || r.calls != 2 {
		t.Errorf("expired cache should read through: %+v calls=%d", st, r.calls)
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	r := &countingReader{err: errors.New("bus busy")}
	c := NewCache(r, time.Minute)
	if _, err := c.Read(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	r.err = nil
	if st, err := c.Read(context.Background()); err != nil || st.Percent != 52 {
		t.Errorf("st = %+v err = %v", st, err)
	}
}

func TestMockReaderRange(t *testing.T) {
	m := NewMockReader()
	for i := 0; i < 50; i++ {
		st, err := m.Read(context.Background())
		if err != nil || st.Percent < 20 || st.Percent > 100 {
			t.Fatalf("st = %+v err = %v", st, err)
		}
	}
}

func TestClampPercent(t *testing.T) {
	for in, want := range map[int]int{-3: 0, 0: 0, 64: 64, 100: 100, 255: 100} {
		if got := clampPercent(in); got != want {
			t.Errorf("clampPercent(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDefaultReaderDoesNotFakeLevels(t *testing.T) {
	r := DefaultReader()
	if _, ok := r.(*i2cReader); !ok {
		t.Fatalf("DefaultReader = %T, want the I2C reader", r)
	}
}
