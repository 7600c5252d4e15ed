// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// The fake drivers are registered once for the whole
// package, since there is no way to unregister.
var (
	fakeOK     = &fakeDriver{name: "fake-ok"}
	fakeBroken = &fakeDriver{name: "fake-broken", err: errFakeOpen}
)

func init() {
	Register(fakeBroken)
	Register(fakeOK)
}

func TestDrivers(t *testing.T) {
	drv := Drivers()
	for i := range drv {
		for j := range i {
			if drv[i].Name() == drv[j].Name() {
				t.Fatalf("Drivers: name %q is not unique", drv[i].Name())
			}
		}
	}
	drv[0] = nil
	if Drivers()[0] == nil {
		t.Fatal("Drivers: returned slice aliases the registry")
	}
}

func TestSelect(t *testing.T) {
	ctx, err := Select("FAKE-OK")
	if err != nil {
		t.Fatalf("Select:\nhave %v\nwant nil", err)
	}
	if ctx.Driver() != fakeOK {
		t.Fatalf("Select: Driver:\nhave %v\nwant %v", ctx.Driver(), fakeOK)
	}
	if _, ok := ctx.GPU().(fakeGPU); !ok {
		t.Fatalf("Select: GPU:\nhave %T\nwant fakeGPU", ctx.GPU())
	}
	closed := fakeOK.closed
	ctx.Close()
	if fakeOK.closed != closed+1 {
		t.Fatal("Context.Close: driver not closed")
	}
	ctx.Close()
	if fakeOK.closed != closed+1 {
		t.Fatal("Context.Close: driver closed twice")
	}
}

func TestSelectFallsThrough(t *testing.T) {
	// Matches both; the broken one is registered first.
	closed := fakeBroken.closed
	ctx, err := Select("fake")
	if err != nil {
		t.Fatalf("Select:\nhave %v\nwant nil", err)
	}
	defer ctx.Close()
	if ctx.Driver() != fakeOK {
		t.Fatalf("Select: Driver:\nhave %s\nwant %s", ctx.Driver().Name(), fakeOK.Name())
	}
	if fakeBroken.closed != closed+1 {
		t.Fatal("Select: driver that failed to open was not closed")
	}
}

func TestSelectFails(t *testing.T) {
	_, err := Select("fake-broken")
	if !errors.Is(err, ErrNoDriver) || !errors.Is(err, errFakeOpen) {
		t.Fatalf("Select(fake-broken):\nhave %v\nwant %v and %v", err, ErrNoDriver, errFakeOpen)
	}
	_, err = Select("no-such-driver")
	if !errors.Is(err, ErrNoDriver) {
		t.Fatalf("Select(no-such-driver):\nhave %v\nwant %v", err, ErrNoDriver)
	}
	defer func() {
		if err, ok := recover().(error); !ok || !errors.Is(err, ErrNoDriver) {
			t.Fatalf("MustSelect: panic:\nhave %v\nwant %v", err, ErrNoDriver)
		}
	}()
	MustSelect("no-such-driver")
}

func TestSelectFromEnv(t *testing.T) {
	t.Setenv(EnvDriver, "fake-ok")
	ctx, err := SelectFromEnv("no-such-driver")
	if err != nil {
		t.Fatalf("SelectFromEnv:\nhave %v\nwant nil", err)
	}
	ctx.Close()

	t.Setenv(EnvDriver, "no-such-driver")
	if _, err := SelectFromEnv("fake-ok"); !errors.Is(err, ErrNoDriver) {
		t.Fatalf("SelectFromEnv:\nhave %v\nwant %v", err, ErrNoDriver)
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(errors.Join(errFakeOpen, ErrFatal)) {
		t.Fatal("IsFatal: wrapped ErrFatal:\nhave false\nwant true")
	}
	if IsFatal(ErrTimeout) {
		t.Fatal("IsFatal(ErrTimeout):\nhave true\nwant false")
	}
}

func TestLogger(t *testing.T) {
	if Logger().Enabled(t.Context(), slog.LevelError) {
		t.Fatal("Logger: enabled by default")
	}
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)
	Register(fakeOK)
	if s := buf.String(); !strings.Contains(s, "driver replaced") || !strings.Contains(s, "fake-ok") {
		t.Fatalf("Register: log output:\nhave %q\nwant driver replaced record", s)
	}
}

func TestValidation(t *testing.T) {
	for _, x := range [...]struct {
		val  string
		want bool
	}{
		{"", false},
		{"0", false},
		{"1", true},
		{"TRUE", true},
		{"on", true},
		{"nope", false},
	} {
		t.Setenv(EnvValidation, x.val)
		if v := Validation(); v != x.want {
			t.Fatalf("Validation (%s=%q):\nhave %t\nwant %t", EnvValidation, x.val, v, x.want)
		}
	}
}
