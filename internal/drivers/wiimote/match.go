package wiimote

import "strings"

const (
	vendorNintendo = 0x057E
	productRemote  = 0x0306

	// Advertised name prefix shared by the whole remote family. The "-UC"
	// models speak an incompatible protocol and belong to another driver.
	remoteNamePrefix = "Nintendo RVL-CNT-01"
	remoteNameUC     = "-UC"
)

// Matches reports whether the advertised device belongs to this driver
// family. The class-of-device byte is ignored.
func Matches(name string, vendorID, productID uint16) bool {
	if vendorID == vendorNintendo && productID == productRemote {
		return true
	}
	return strings.Contains(name, remoteNamePrefix) && !strings.Contains(name, remoteNameUC)
}
