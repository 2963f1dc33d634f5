//go:build !linux

package ubi

import (
	"errors"
)

var errUnsupported = errors.New("UBI is only available on Linux")

type nodeOps struct{}

func (nodeOps) CharDevNum(string) (uint32, uint32, error) {
	return 0, 0, errUnsupported
}

func (nodeOps) Mkvol(string, *mkvolReq) error {
	return errUnsupported
}
