// Package input turns raw terminal key presses into teleop key events and
// relays them from a dedicated reader goroutine.
package input

import "github.com/eiannone/keyboard"

// Key is a classified key press.
type Key int

const (
	KeyOther Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeySpace
	KeyQuit
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeySpace:
		return "space"
	case KeyQuit:
		return "quit"
	default:
		return "other"
	}
}

// Relayed reports whether the reader forwards k to the multiplexer.
func (k Key) Relayed() bool {
	return k >= KeyUp && k <= KeySpace
}

// Classify maps a keyboard event. Escape, q and Ctrl+C quit.
func Classify(ch rune, key keyboard.Key) Key {
	if ch != 0 {
		switch ch {
		case 'q', 'Q':
			return KeyQuit
		case ' ':
			return KeySpace
		}
		return KeyOther
	}
	switch key {
	case keyboard.KeyArrowUp:
		return KeyUp
	case keyboard.KeyArrowDown:
		return KeyDown
	case keyboard.KeyArrowLeft:
		return KeyLeft
	case keyboard.KeyArrowRight:
		return KeyRight
	case keyboard.KeySpace:
		return KeySpace
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return KeyQuit
	}
	return KeyOther
}
