package model

import "errors"

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrConfiguration     = errors.New("configuration error")
	ErrNumericFault      = errors.New("numeric fault")
	ErrSessionBusy       = errors.New("session busy")
	ErrStopped           = errors.New("training stopped")
)
