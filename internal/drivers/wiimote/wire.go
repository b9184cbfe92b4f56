package wiimote

// Every outbound command travels as a Bluetooth HID SET_REPORT transaction
// on the control channel, so frames start with the 0xA2 transaction header
// followed by the output report id.
const (
	hidOutputHeader = 0xA2

	cmdRumble     = 0x10
	cmdLEDs       = 0x11
	cmdReportMode = 0x12
	cmdStatusReq  = 0x15
	cmdWriteReg   = 0x16
	cmdReadReg    = 0x17
)

// Inbound report ids.
const (
	reportStatus   = 0x20
	reportReadData = 0x21
	reportAck      = 0x22
)

// Input report modes. Core buttons only, or core buttons plus eight
// extension bytes.
const (
	modeCoreButtons   = 0x30
	modeCoreExtension = 0x32
)

// Extension registers. Writing the two unlock bytes disables the accessory's
// data encryption and makes the identification bytes readable.
const (
	regExtUnlock1 = 0xA400F0
	regExtUnlock2 = 0xA400FB
	regExtIdent   = 0xA400FA

	extUnlock1Value = 0x55
	extUnlock2Value = 0x00
	extIdentLen     = 6
)

func statusRequest() []byte {
	return []byte{hidOutputHeader, cmdStatusReq, 0x00}
}

func setLEDs(pattern byte) []byte {
	return []byte{hidOutputHeader, cmdLEDs, pattern}
}

func setReportMode(extension bool) []byte {
	mode := byte(modeCoreButtons)
	if extension {
		mode = modeCoreExtension
	}
	return []byte{hidOutputHeader, cmdReportMode, 0x00, mode}
}

func setRumble(on bool) []byte {
	v := byte(0)
	if on {
		v = 1
	}
	return []byte{hidOutputHeader, cmdRumble, v}
}

func writeRegister(addr uint32, value byte) []byte {
	return []byte{
		hidOutputHeader, cmdWriteReg, 0x04,
		byte(addr >> 16), byte(addr >> 8), byte(addr),
		0x01, value,
	}
}

func readRegister(addr uint32, size uint16) []byte {
	return []byte{
		hidOutputHeader, cmdReadReg, 0x04,
		byte(addr >> 16), byte(addr >> 8), byte(addr),
		byte(size >> 8), byte(size),
	}
}
