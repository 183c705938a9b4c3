package hci

import "encoding/binary"

// HCI packet and LE controller command constants.
const (
	packetTypeCommand = 0x01

	ogfLEController = 0x08

	ocfSetAdvParams = 0x0006
	ocfSetAdvData   = 0x0008
	ocfSetAdvEnable = 0x000A

	advTypeNonConnInd  = 0x03
	ownAddrPublic      = 0x00
	peerAddrPublic     = 0x00
	channelMapAll      = 0x07
	filterPolicyAnyAny = 0x00

	maxAdvData = 31
)

func opcode(ogf, ocf uint16) uint16 {
	return ogf<<10 | ocf
}

// command builds an HCI command packet: type, opcode (LE), length, params.
func command(ocf uint16, params []byte) []byte {
	pkt := make([]byte, 4+len(params))
	pkt[0] = packetTypeCommand
	binary.LittleEndian.PutUint16(pkt[1:3], opcode(ogfLEController, ocf))
	pkt[3] = byte(len(params))
	copy(pkt[4:], params)
	return pkt
}

// setAdvParams builds LE Set Advertising Parameters for a non-connectable
// advertisement on all channels.
func setAdvParams(intervalMin, intervalMax uint16) []byte {
	p := make([]byte, 15)
	binary.LittleEndian.PutUint16(p[0:2], intervalMin)
	binary.LittleEndian.PutUint16(p[2:4], intervalMax)
	p[4] = advTypeNonConnInd
	p[5] = ownAddrPublic
	p[6] = peerAddrPublic
	// p[7:13] peer address, unused for non-directed advertising
	p[13] = channelMapAll
	p[14] = filterPolicyAnyAny
	return command(ocfSetAdvParams, p)
}

// setAdvData builds LE Set Advertising Data. The data field is always 31
// bytes, zero padded.
func setAdvData(data []byte) []byte {
	p := make([]byte, 1+maxAdvData)
	p[0] = byte(len(data))
	copy(p[1:], data)
	return command(ocfSetAdvData, p)
}

func setAdvEnable(enable bool) []byte {
	var v byte
	if enable {
		v = 1
	}
	return command(ocfSetAdvEnable, []byte{v})
}
