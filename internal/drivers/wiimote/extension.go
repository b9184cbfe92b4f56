package wiimote

// Extension classifies the accessory plugged into the remote's expansion
// port. ExtNone covers both "nothing attached" and "attached but not
// identified".
type Extension uint8

const (
	ExtNone Extension = iota
	ExtNunchuk
	ExtClassic
	ExtClassicMini
)

func (e Extension) String() string {
	switch e {
	case ExtNunchuk:
		return "nunchuk"
	case ExtClassic:
		return "classic"
	case ExtClassicMini:
		return "classic-mini"
	default:
		return "none"
	}
}

// Identification signature bytes common to the whole accessory family.
const (
	extSigByte2 = 0xA4
	extSigByte3 = 0x20
)

// classifyExtension inspects the six identification bytes read from
// regExtIdent. A broken signature leaves the extension unclassified, as does
// the Wii U Pro controller, which is owned by a different driver. Anything
// else with a valid signature is treated as a Nunchuk so that unknown
// single-stick accessories still produce usable input.
func classifyExtension(id []byte) Extension {
	if len(id) < extIdentLen {
		return ExtNone
	}
	if id[2] != extSigByte2 || id[3] != extSigByte3 {
		return ExtNone
	}
	switch {
	case id[4] == 0x00 && id[5] == 0x00:
		return ExtNunchuk
	case id[4] == 0x01 && id[5] == 0x01:
		// NES/SNES Classic Mini pads report the same type bytes as the
		// Classic Controller but lead with 0x02 or higher.
		if id[0] >= 2 {
			return ExtClassicMini
		}
		return ExtClassic
	case id[4] == 0x01 && id[5] == 0x20:
		// Wii U Pro controller; not ours.
		return ExtNone
	default:
		return ExtNunchuk
	}
}
