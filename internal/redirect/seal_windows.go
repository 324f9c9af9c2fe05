package redirect

import "errors"

const openFlags = 0

// SealInherited is not supported on this platform
func SealInherited(lowest int) error {
	return errors.New("descriptor sealing is not supported on this platform")
}

// IsCloseOnExec is not supported on this platform
func IsCloseOnExec(fd int) (bool, error) {
	return false, errors.New("descriptor flags are not supported on this platform")
}
