//go:build !linux

package isolation

import "errors"

func mountFreeBytes(string) (int64, error) {
	return 0, errors.ErrUnsupported
}
