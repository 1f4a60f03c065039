package wake

import "testing"

func TestLocalLineAssertDeassert(t *testing.T) {
	l := NewLocalLine("irq0")
	if l.Asserted() {
		t.Fatalf("new line should start deasserted")
	}
	l.Assert()
	if !l.Asserted() {
		t.Errorf("line should be asserted after Assert")
	}
	l.Deassert()
	if l.Asserted() {
		t.Errorf("line should be deasserted after Deassert")
	}
}

func TestLineEventfdRoundTrip(t *testing.T) {
	l, err := NewLine("fiq0")
	if err != nil {
		t.Skipf("eventfd unavailable in this environment: %v", err)
	}
	defer l.Close()

	l.Assert()
	if !l.Asserted() {
		t.Errorf("expected Asserted() true after Assert")
	}
	if l.FD() < 0 {
		t.Errorf("expected a valid eventfd")
	}
}
