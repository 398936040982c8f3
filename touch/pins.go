package touch

import "github.com/sweeney/captouch/hw"

// SelectMode determines how OpenChannel interprets its pin argument.
type SelectMode uint8

const (
	// SelectByGPIO resolves the argument as a GPIO number via the static
	// channel table.
	SelectByGPIO SelectMode = iota
	// SelectByChannel uses the argument directly as a channel index.
	SelectByChannel
)

// channelGPIOs maps channel index to the GPIO wired to that sensing channel.
// The table is fixed by the pinmux; entries are ascending.
var channelGPIOs = [hw.NumChannels]int{0, 2, 4, 12, 13, 14, 15, 27, 32, 33}

// PinMapping is a fully resolved (GPIO, channel index) pair.
type PinMapping struct {
	GPIO    int
	Channel int
}

// Resolve maps a pin selector to its channel mapping. It returns ok=false if
// the value does not correspond to a sensing channel in the given mode;
// a PinMapping is never partially filled.
func Resolve(mode SelectMode, value int) (PinMapping, bool) {
	switch mode {
	case SelectByGPIO:
		for i, gpio := range channelGPIOs {
			if gpio == value {
				return PinMapping{GPIO: gpio, Channel: i}, true
			}
		}
	case SelectByChannel:
		if value >= 0 && value < hw.NumChannels {
			return PinMapping{GPIO: channelGPIOs[value], Channel: value}, true
		}
	}
	return PinMapping{}, false
}
