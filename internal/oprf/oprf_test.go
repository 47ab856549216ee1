package oprf

import (
	"bytes"
	"errors"
	"testing"
)

func TestBlind_FreshScalarPerExchange(t *testing.T) {
	t.Parallel()
	a, err := Blind("user@example.com")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Blind("user@example.com")
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(a.Element, b.Element) {
		t.Error("two blindings of the same email produced identical elements")
	}
}

func TestBlind_EmptyInput(t *testing.T) {
	t.Parallel()
	if _, err := Blind("   "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestBlindingInvariance(t *testing.T) {
	t.Parallel()
	secret, err := NewEvaluationKey()
	if err != nil {
		t.Fatal(err)
	}

	// Two independent exchanges with different blinding scalars must
	// unblind to the same output: the blinding factor never leaks into the
	// final result.
	var outputs [2][]byte
	for i := range outputs {
		blinded, err := Blind("user@example.com")
		if err != nil {
			t.Fatal(err)
		}
		evaluated, err := Evaluate(blinded.Element, secret)
		if err != nil {
			t.Fatal(err)
		}
		outputs[i], err = blinded.Unblind(evaluated)
		if err != nil {
			t.Fatal(err)
		}
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("unblinded outputs differ across blinding scalars")
	}
}

func TestUnblind_DistinctEmailsDistinctOutputs(t *testing.T) {
	t.Parallel()
	secret, err := NewEvaluationKey()
	if err != nil {
		t.Fatal(err)
	}

	run := func(email string) []byte {
		blinded, err := Blind(email)
		if err != nil {
			t.Fatal(err)
		}
		evaluated, err := Evaluate(blinded.Element, secret)
		if err != nil {
			t.Fatal(err)
		}
		out, err := blinded.Unblind(evaluated)
		if err != nil {
			t.Fatal(err)
		}
		return out
	}

	if bytes.Equal(run("a@example.com"), run("b@example.com")) {
		t.Error("different emails produced the same OPRF output")
	}
}

func TestUnblind_NormalizationFoldsSpellings(t *testing.T) {
	t.Parallel()
	secret, err := NewEvaluationKey()
	if err != nil {
		t.Fatal(err)
	}

	run := func(email string) []byte {
		blinded, err := Blind(email)
		if err != nil {
			t.Fatal(err)
		}
		evaluated, err := Evaluate(blinded.Element, secret)
		if err != nil {
			t.Fatal(err)
		}
		out, err := blinded.Unblind(evaluated)
		if err != nil {
			t.Fatal(err)
		}
		return out
	}

	if !bytes.Equal(run("User@Example.COM"), run(" user@example.com ")) {
		t.Error("spelling-equivalent emails must derive identical output")
	}
}

func TestUnblind_DifferentServerKeysDiffer(t *testing.T) {
	t.Parallel()
	k1, err := NewEvaluationKey()
	if err != nil {
		t.Fatal(err)
	}
	k2, err := NewEvaluationKey()
	if err != nil {
		t.Fatal(err)
	}

	blinded, err := Blind("user@example.com")
	if err != nil {
		t.Fatal(err)
	}

	e1, err := Evaluate(blinded.Element, k1)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := Evaluate(blinded.Element, k2)
	if err != nil {
		t.Fatal(err)
	}

	u1, err := blinded.Unblind(e1)
	if err != nil {
		t.Fatal(err)
	}
	u2, err := blinded.Unblind(e2)
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(u1, u2) {
		t.Error("the client must not be able to compute the output without the server secret")
	}
}

func TestUnblind_RejectsGarbage(t *testing.T) {
	t.Parallel()
	blinded, err := Blind("user@example.com")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		bytes []byte
	}{
		{"empty", nil},
		{"short", []byte{0x01, 0x02}},
		{"wrong length", make([]byte, 31)},
		{"not a point", bytes.Repeat([]byte{0xff}, 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := blinded.Unblind(tt.bytes); !errors.Is(err, ErrInvalidElement) {
				t.Errorf("expected ErrInvalidElement, got %v", err)
			}
		})
	}
}
