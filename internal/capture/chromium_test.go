package capture

import (
	"context"
	"testing"
	"time"
)

func TestOptionsNormalize(t *testing.T) {
	o := Options{URL: "http://127.0.0.1:8080/", OutputPath: "/tmp/x.png"}
	if err := o.normalize(); err != nil {
		t.Fatal(err)
	}
	if o.Width != DefaultWidth || o.Height != DefaultHeight || o.Timeout != DefaultTimeout {
		t.Errorf("defaults not applied: %+v", o)
	}

	o = Options{Width: 10, Height: 20, Timeout: time.Second, URL: "u", OutputPath: "p"}
	if err := o.normalize(); err != nil {
		t.Fatal(err)
	}
	if o.Width != 10 || o.Height != 20 || o.Timeout != time.Second {
		t.Errorf("explicit values overwritten: %+v", o)
	}
}

func TestBoardPNGValidatesBeforeLaunching(t *testing.T) {
	if err := BoardPNG(context.Background(), Options{OutputPath: "x.png"}); err == nil {
		t.Error("missing URL should fail")
	}
	if err := BoardPNG(context.Background(), Options{URL: "http://x"}); err == nil {
		t.Error("missing OutputPath should fail")
	}
}
