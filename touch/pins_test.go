package touch

import (
	"testing"

	"github.com/sweeney/captouch/hw"
)

func TestResolveByChannel(t *testing.T) {
	for i := 0; i < hw.NumChannels; i++ {
		m, ok := Resolve(SelectByChannel, i)
		if !ok {
			t.Fatalf("channel %d: expected resolution", i)
		}
		if m.Channel != i {
			t.Errorf("channel %d: got index %d", i, m.Channel)
		}
		if m.GPIO != channelGPIOs[i] {
			t.Errorf("channel %d: expected gpio %d, got %d", i, channelGPIOs[i], m.GPIO)
		}
	}
}

func TestResolveRoundTrip(t *testing.T) {
	// Resolving by GPIO then by index must yield the same pair.
	for i, gpio := range channelGPIOs {
		byGPIO, ok := Resolve(SelectByGPIO, gpio)
		if !ok {
			t.Fatalf("gpio %d: expected resolution", gpio)
		}
		byIndex, ok := Resolve(SelectByChannel, i)
		if !ok {
			t.Fatalf("index %d: expected resolution", i)
		}
		if byGPIO != byIndex {
			t.Errorf("gpio %d: round trip mismatch: %+v vs %+v", gpio, byGPIO, byIndex)
		}
	}
}

func TestResolveInvalid(t *testing.T) {
	cases := []struct {
		name  string
		mode  SelectMode
		value int
	}{
		{"unmapped gpio", SelectByGPIO, 5},
		{"negative gpio", SelectByGPIO, -1},
		{"index too high", SelectByChannel, hw.NumChannels},
		{"negative index", SelectByChannel, -1},
	}
	for _, tc := range cases {
		m, ok := Resolve(tc.mode, tc.value)
		if ok {
			t.Errorf("%s: expected failure, got %+v", tc.name, m)
		}
		if m != (PinMapping{}) {
			t.Errorf("%s: failed resolution must be zero, got %+v", tc.name, m)
		}
	}
}

func TestTableAscending(t *testing.T) {
	for i := 1; i < len(channelGPIOs); i++ {
		if channelGPIOs[i] <= channelGPIOs[i-1] {
			t.Errorf("table not ascending at %d: %d <= %d", i, channelGPIOs[i], channelGPIOs[i-1])
		}
	}
}
