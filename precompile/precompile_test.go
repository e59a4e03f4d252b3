package precompile

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/evmkit/evmkit/types"
)

func TestIdentityEchoesInput(t *testing.T) {
	input := []byte("the quick brown fox")
	out, err := identity{}.Run(input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("identity output = %x, want %x", out, input)
	}
}

func TestIdentityGasScalesWithWordCount(t *testing.T) {
	c := identity{}
	if got, want := c.RequiredGas(make([]byte, 32)), uint64(15+3); got != want {
		t.Fatalf("RequiredGas(32 bytes) = %d, want %d", got, want)
	}
	if got, want := c.RequiredGas(make([]byte, 33)), uint64(15+6); got != want {
		t.Fatalf("RequiredGas(33 bytes) = %d, want %d", got, want)
	}
}

func TestSha256Hash(t *testing.T) {
	input := []byte("evmkit")
	out, err := sha256Hash{}.Run(input)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := sha256.Sum256(input)
	if !bytes.Equal(out, want[:]) {
		t.Fatalf("sha256 output = %x, want %x", out, want)
	}
}

func TestRegistryCoversFixedAddresses(t *testing.T) {
	for i := byte(1); i <= 8; i++ {
		var a types.Address
		a[len(a)-1] = i
		if !IsPrecompile(a) {
			t.Errorf("address %d not registered as a precompile", i)
		}
	}
	var notPrecompile types.Address
	notPrecompile[len(notPrecompile)-1] = 9
	if IsPrecompile(notPrecompile) {
		t.Errorf("address 9 should not be a precompile")
	}
}

func TestRunChargesGasAndRejectsInsufficientGas(t *testing.T) {
	var identityAddr types.Address
	identityAddr[len(identityAddr)-1] = 4

	out, remaining, err := Run(identityAddr, []byte("hi"), 100)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(out, []byte("hi")) {
		t.Fatalf("Run output = %q, want %q", out, "hi")
	}
	if remaining != 100-18 { // 15 base + 1 word(3) for a 2-byte input
		t.Fatalf("remaining gas = %d, want %d", remaining, 100-18)
	}

	if _, _, err := Run(identityAddr, []byte("hi"), 5); err == nil {
		t.Fatalf("expected out-of-gas error")
	}
}

func TestModExpAndBn256Stubs(t *testing.T) {
	if _, err := (modExp{}).Run(nil); err != ErrNotImplemented {
		t.Fatalf("modExp.Run error = %v, want ErrNotImplemented", err)
	}
	if _, err := (bn256Add{}).Run(nil); err != ErrNotImplemented {
		t.Fatalf("bn256Add.Run error = %v, want ErrNotImplemented", err)
	}
	if _, err := (bn256Mul{}).Run(nil); err != ErrNotImplemented {
		t.Fatalf("bn256Mul.Run error = %v, want ErrNotImplemented", err)
	}
	if _, err := (bn256Pairing{}).Run(nil); err != ErrNotImplemented {
		t.Fatalf("bn256Pairing.Run error = %v, want ErrNotImplemented", err)
	}
}
