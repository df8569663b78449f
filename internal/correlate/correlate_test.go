package correlate

import "testing"

func TestPrefixCorrelator_MatchingPrefix(t *testing.T) {
	c := NewPrefixCorrelator(DefaultVehiclePrefix, DefaultMeterPrefix)

	if got := c.MeterFor("VEH-042"); got != "METER-042" {
		t.Errorf("Expected METER-042, got %s", got)
	}
}

func TestPrefixCorrelator_NonMatchingPassThrough(t *testing.T) {
	c := NewPrefixCorrelator(DefaultVehiclePrefix, DefaultMeterPrefix)

	for _, id := range []string{"CAR-042", "veh-042", "", "XVEH-042"} {
		if got := c.MeterFor(id); got != id {
			t.Errorf("Expected %q to pass through unchanged, got %q", id, got)
		}
	}
}

func TestPrefixCorrelator_OnlyLeadingPrefixReplaced(t *testing.T) {
	c := NewPrefixCorrelator(DefaultVehiclePrefix, DefaultMeterPrefix)

	if got := c.MeterFor("VEH-VEH-1"); got != "METER-VEH-1" {
		t.Errorf("Expected METER-VEH-1, got %s", got)
	}
}

func TestPrefixCorrelator_EmptyVehiclePrefix(t *testing.T) {
	c := NewPrefixCorrelator("", DefaultMeterPrefix)

	if got := c.MeterFor("VEH-001"); got != "VEH-001" {
		t.Errorf("Expected pass-through with empty prefix, got %s", got)
	}
}

func TestFunc_Adapter(t *testing.T) {
	var c Correlator = Func(func(id string) string { return "M:" + id })

	if got := c.MeterFor("7"); got != "M:7" {
		t.Errorf("Expected M:7, got %s", got)
	}
}
