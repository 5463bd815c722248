package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
}

func TestTxFromContext_Empty(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected no transaction on a bare context")
	}
}

func TestConn_PrefersTransaction(t *testing.T) {
	tx := &fakeTx{}
	ctx := withTx(context.Background(), tx)

	q := Conn(ctx, nil)
	if q != pgx.Tx(tx) {
		t.Errorf("expected Conn to return the bound transaction, got %T", q)
	}
}

func TestWithTx_NestedReusesOuter(t *testing.T) {
	tx := &fakeTx{}
	ctx := withTx(context.Background(), tx)

	called := false
	err := WithTx(ctx, nil, func(inner context.Context) error {
		called = true
		if TxFromContext(inner) != pgx.Tx(tx) {
			t.Error("expected nested call to see the outer transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to run")
	}
}

func TestNoTx_PropagatesError(t *testing.T) {
	want := errors.New("boom")
	err := NoTx{}.InTx(context.Background(), func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}
