package services

import (
	"errors"

	"gvisor.dev/gvisor/pkg/errors/linuxerr"

	"github.com/sisoputnfrba/tp-2025-2c-Los-magiOS-vm/memoria/models"
)

// Errno traduce un error del subsistema al errno que vería el proceso de usuario.
func Errno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrAddressAlreadyMapped), errors.Is(err, models.ErrProcessExists):
		return linuxerr.EEXIST
	case errors.Is(err, models.ErrOutOfMemory):
		return linuxerr.ENOMEM
	case errors.Is(err, models.ErrIO):
		return linuxerr.EIO
	case errors.Is(err, models.ErrInvalidFault), errors.Is(err, models.ErrStackGrowthDenied):
		return linuxerr.EFAULT
	case errors.Is(err, models.ErrNoSuchProcess):
		return linuxerr.ESRCH
	default:
		return linuxerr.EINVAL
	}
}
