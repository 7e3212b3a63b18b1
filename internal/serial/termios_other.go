//go:build !linux

package serial

import "errors"

func makeRaw(int, uint32) error {
	return errors.New("serial lines are only supported on linux")
}
