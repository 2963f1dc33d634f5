package system

import (
	"fmt"
)

// MaxNodeLen is the longest device node path accepted
const MaxNodeLen = 255

// ValidateNodeName checks a UBI device node path before it is used
func ValidateNodeName(node string) error {
	if node == "" {
		return fmt.Errorf("UBI device name was not specified (use -h for help)")
	}
	if len(node) > MaxNodeLen {
		return fmt.Errorf("too long device node name: %q (%d characters), max. is %d",
			node, len(node), MaxNodeLen)
	}
	return nil
}

// DeviceNodeName returns the conventional node path of UBI device devNum
func DeviceNodeName(devNum int) string {
	return fmt.Sprintf("/dev/ubi%d", devNum)
}
