package services

import (
	"context"
	"errors"
	"testing"

	"streak-backend/internal/models"
)

func TestRequestFreezeInsufficientFunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fund(t, "a", 10)
	e.confirm(t, "a", "b", "2024-01-01")
	before, _ := e.economy.Balance(ctx, "a")

	res, err := e.economy.RequestFreeze(ctx, "a", "b", int(before)+5, date("2024-01-01"))
	if err != nil {
		t.Fatalf("RequestFreeze: %v", err)
	}
	if res.Success || res.Status != models.FreezeStatusInsufficientFunds {
		t.Errorf("result = %+v, want insufficient_funds", res)
	}
	if res.NewBalance != before {
		t.Errorf("reported balance = %d, want %d", res.NewBalance, before)
	}

	after, _ := e.economy.Balance(ctx, "a")
	if after != before {
		t.Errorf("balance = %d, want unchanged %d", after, before)
	}
	end, err := e.economy.ActiveFreeze(ctx, "a", "b", date("2024-01-01"))
	if err != nil || end != nil {
		t.Errorf("ActiveFreeze = %v, %v, want nil", end, err)
	}
}

// balance 10, cost 1, 15 days is refused without touching anything
func TestRequestFreezeFifteenOnTen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fund(t, "a", 10)
	if _, err := e.requests.Request(ctx, "b", "a"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	reqs, _ := e.requests.Incoming(ctx, "a")
	if _, err := e.requests.Accept(ctx, reqs[0].ID, "a"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	res, err := e.economy.RequestFreeze(ctx, "a", "b", 15, date("2024-01-01"))
	if err != nil {
		t.Fatalf("RequestFreeze: %v", err)
	}
	if res.Success {
		t.Fatal("freeze granted on insufficient funds")
	}
	if got, _ := e.economy.Balance(ctx, "a"); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
	if end, _ := e.economy.ActiveFreeze(ctx, "a", "b", date("2024-01-01")); end != nil {
		t.Errorf("freeze installed through %s", end)
	}
}

func TestRequestFreezeGrantedAndExtended(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fund(t, "a", 20)
	e.fund(t, "b", 20)
	e.confirm(t, "a", "b", "2024-01-01")
	start, _ := e.economy.Balance(ctx, "a")

	res, err := e.economy.RequestFreeze(ctx, "a", "b", 5, date("2024-01-01"))
	if err != nil {
		t.Fatalf("RequestFreeze: %v", err)
	}
	if !res.Success || res.NewEndDate.String() != "2024-01-06" {
		t.Fatalf("result = %+v, want granted through 2024-01-06", res)
	}
	if res.NewBalance != start-5 {
		t.Errorf("balance = %d, want %d", res.NewBalance, start-5)
	}

	// extends from the current end, not from asOf
	res, err = e.economy.RequestFreeze(ctx, "b", "a", 3, date("2024-01-02"))
	if err != nil {
		t.Fatalf("RequestFreeze: %v", err)
	}
	if !res.Success || res.NewEndDate.String() != "2024-01-09" {
		t.Errorf("extended = %+v, want through 2024-01-09", res)
	}

	types := e.notes.types()
	if types[len(types)-1] != models.EventFreezeGranted {
		t.Errorf("last event = %s, want %s", types[len(types)-1], models.EventFreezeGranted)
	}
}

func TestRequestFreezeValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fund(t, "a", 500)
	e.confirm(t, "a", "b", "2024-01-01")
	horizon := DefaultPolicy().FreezeMaxHorizonDays

	tests := []struct {
		name string
		days int
	}{
		{"zero days", 0},
		{"negative days", -3},
		{"past horizon", horizon + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.economy.RequestFreeze(ctx, "a", "b", tt.days, date("2024-01-01"))
			if !models.IsValidation(err) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}

	// an extension that would cross the horizon is refused before debiting
	if _, err := e.economy.RequestFreeze(ctx, "a", "b", horizon, date("2024-01-01")); err != nil {
		t.Fatalf("RequestFreeze(horizon): %v", err)
	}
	before, _ := e.economy.Balance(ctx, "a")
	if _, err := e.economy.RequestFreeze(ctx, "a", "b", 1, date("2024-01-01")); !models.IsValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
	if after, _ := e.economy.Balance(ctx, "a"); after != before {
		t.Errorf("balance = %d, want %d", after, before)
	}
}

func TestRequestFreezeUnlinkedPair(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "a", 10)
	_, err := e.economy.RequestFreeze(context.Background(), "a", "b", 1, date("2024-01-01"))
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAdjustBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "a", 3)

	ok, err := e.economy.AdjustBalance(ctx, "a", -5, false)
	if err != nil || ok {
		t.Errorf("overdraw = %v, %v, want false", ok, err)
	}
	if got, _ := e.economy.Balance(ctx, "a"); got != 3 {
		t.Errorf("balance = %d, want 3", got)
	}

	ok, err = e.economy.AdjustBalance(ctx, "a", -5, true)
	if err != nil || !ok {
		t.Errorf("allowed overdraw = %v, %v, want true", ok, err)
	}
	if got, _ := e.economy.Balance(ctx, "a"); got != -2 {
		t.Errorf("balance = %d, want -2", got)
	}

	if _, err := e.economy.AdjustBalance(ctx, "ghost", 1, false); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown user err = %v, want ErrNotFound", err)
	}
}

// a freeze only holds off the sweep; a late confirmation still restarts at 1
func TestFreezeDoesNotBridgeGap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fund(t, "a", 10)
	for d := date("2024-01-01"); !d.After(date("2024-01-05")); d = d.AddDays(1) {
		e.confirm(t, "a", "b", d.String())
	}
	if _, err := e.economy.RequestFreeze(ctx, "a", "b", 10, date("2024-01-05")); err != nil {
		t.Fatalf("RequestFreeze: %v", err)
	}

	assertTransition(t, e.confirm(t, "a", "b", "2024-01-08"), models.TransitionReset, 1)
	pair := e.pair(t, "a", "b")
	if pair.Count != 1 || pair.LastDate.String() != "2024-01-08" {
		t.Errorf("pair = (%d, %v), want (1, 2024-01-08)", pair.Count, pair.LastDate)
	}
}

func TestRequestFreezeInstallFailureRefundsDebit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fund(t, "a", 10)
	e.confirm(t, "a", "b", "2024-01-01")
	before, _ := e.economy.Balance(ctx, "a")

	corrupt(t, e.path, `CREATE TRIGGER reject_freeze BEFORE INSERT ON freeze_windows
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)

	if _, err := e.economy.RequestFreeze(ctx, "a", "b", 3, date("2024-01-01")); err == nil {
		t.Fatal("RequestFreeze succeeded with a failing install")
	}
	if after, _ := e.economy.Balance(ctx, "a"); after != before {
		t.Errorf("balance = %d, want %d", after, before)
	}
	if end, err := e.economy.ActiveFreeze(ctx, "a", "b", date("2024-01-01")); err != nil || end != nil {
		t.Errorf("ActiveFreeze = %v, %v, want nil", end, err)
	}
	if types := e.notes.types(); len(types) > 0 && types[len(types)-1] == models.EventFreezeGranted {
		t.Error("freeze_granted sent for a failed install")
	}
}
