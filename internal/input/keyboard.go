package input

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/eiannone/keyboard"
	"golang.org/x/term"
)

var ErrNotTerminal = errors.New("stdin is not a terminal")

// Source yields classified key presses. ReadKey blocks.
type Source interface {
	ReadKey() (Key, error)
}

// Keyboard reads the controlling terminal in raw mode. The terminal stays
// raw from OpenKeyboard until Close.
type Keyboard struct {
	once     sync.Once
	closeErr error
}

// OpenKeyboard switches the terminal to raw mode.
func OpenKeyboard() (*Keyboard, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, ErrNotTerminal
	}
	if err := keyboard.Open(); err != nil {
		return nil, fmt.Errorf("open keyboard: %w", err)
	}
	return &Keyboard{}, nil
}

func (k *Keyboard) ReadKey() (Key, error) {
	ch, key, err := keyboard.GetKey()
	if err != nil {
		return KeyOther, err
	}
	return Classify(ch, key), nil
}

// Close restores line-buffered mode and unblocks a pending ReadKey. It is
// safe to call more than once.
func (k *Keyboard) Close() error {
	k.once.Do(func() {
		k.closeErr = keyboard.Close()
	})
	return k.closeErr
}
