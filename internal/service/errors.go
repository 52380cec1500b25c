package service

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrSlideNotFound  = errors.New("slide not found")
	ErrModuleNotFound = errors.New("module not found")
	ErrModuleLocked   = errors.New("module locked")
	ErrExamLocked     = errors.New("exam locked")
)
