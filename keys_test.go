package memocache

import (
	"errors"
	"testing"
)

type unit struct{ seq int32 }

type faction struct{ seq int32 }

type unregistered struct{}

func init() {
	RegisterIndexGetter[*unit](func(u *unit) int32 { return u.seq })
	RegisterIndexGetter[faction](func(f faction) int32 { return f.seq })
}

func TestIdentityKeysCompareByIndex(t *testing.T) {
	a, b := &unit{seq: 1}, &unit{seq: 1}
	if ID1(a) != ID1(b) {
		t.Fatalf("same index, different keys")
	}
	k := ID2(a, faction{seq: 3})
	if k != (IDKey2{A: 1, B: 3}) {
		t.Fatalf("ID2=%+v", k)
	}
	if ID2(a, faction{seq: 3}) == ID2(a, faction{seq: 4}) {
		t.Fatalf("different components compare equal")
	}
}

func TestIdentityKeyWithoutGetterPanics(t *testing.T) {
	defer func() {
		err, _ := recover().(error)
		if !errors.Is(err, ErrNoIndexGetter) {
			t.Fatalf("recovered %v, want ErrNoIndexGetter", err)
		}
		var cfg *ConfigError
		if !errors.As(err, &cfg) {
			t.Fatalf("recovered %T, want *ConfigError", err)
		}
	}()
	ID1(unregistered{})
}

func TestValueKeysHashOrderSensitive(t *testing.T) {
	k1 := K2("price", 5)
	k2 := K2("price", 5)
	if k1 != k2 || k1.Hash() != k2.Hash() {
		t.Fatalf("equal keys must hash equal")
	}
	if K2(1, 2).Hash() == K2(2, 1).Hash() {
		t.Fatalf("component order ignored")
	}
	if K3("a", 1, true).Hash() == K3("a", 1, false).Hash() {
		t.Fatalf("last component ignored")
	}
}

func TestKeysUsableInTables(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	tbl, _ := NewTable(reg, Options[Key2[string, int], int]{
		Init: func(k Key2[string, int]) int { return len(k.A) + k.B },
	})
	if got := tbl.GetOrAdd(K2("abc", 4)); got != 7 {
		t.Fatalf("GetOrAdd=%d want 7", got)
	}
	if _, ok := tbl.Get(K2("abc", 4)); !ok {
		t.Fatalf("equal key missed")
	}
}

func TestHashOfPrefersHasher(t *testing.T) {
	k := IDKey3{1, 2, 3}
	if HashOf(k) != k.Hash() {
		t.Fatalf("HashOf ignored Hash method")
	}
	if HashOf("x") != HashOf("x") {
		t.Fatalf("HashOf not deterministic")
	}
}
