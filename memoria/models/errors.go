package models

import "errors"

// DEFINICION DE ERRORES
var (
	ErrAddressAlreadyMapped = errors.New("address already mapped")
	ErrOutOfMemory          = errors.New("out of memory")
	ErrIO                   = errors.New("i/o failure")
	ErrInvalidFault         = errors.New("invalid fault")
	ErrStackGrowthDenied    = errors.New("stack growth denied")
	ErrInvalidMapping       = errors.New("invalid mapping")
	ErrNoSuchProcess        = errors.New("no such process")
	ErrProcessExists        = errors.New("process already exists")
)
